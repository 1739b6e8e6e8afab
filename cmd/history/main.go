package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vitos/swap_monitor/internal/infrastructure/storage"
)

func main() {
	path := "monitor.db"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	store, err := storage.NewHistoryStore(path)
	if err != nil {
		fmt.Printf("Failed to open history store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	rows, err := store.Coverage(context.Background())
	if err != nil {
		fmt.Printf("Failed to read coverage: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found history for %d instruments:\n", len(rows))
	for _, row := range rows {
		fmt.Printf("- %s: %d volume rows, %d OI rows", row.InstID, row.VolumeRows, row.OIRows)
		if !row.LastVolume.IsZero() {
			fmt.Printf(", last volume %s", row.LastVolume.Format("2006-01-02 15:04:05"))
		}
		if !row.LastOpenInt.IsZero() {
			fmt.Printf(", last OI %s", row.LastOpenInt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
}
