package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/swap_monitor/internal/domain"
)

func TestFormatVolume(t *testing.T) {
	cases := []struct {
		name  string
		value float64
		want  string
	}{
		{"zero", 0, "0"},
		{"small", 950, "950"},
		{"thousands", 1500, "1.5千"},
		{"ten thousands", 10300, "1.03万"},
		{"hundred thousands", 102500, "10.25万"},
		{"hundred millions", 250_000_000, "2.50亿"},
		{"exact wan boundary", 10000, "1.00万"},
		{"exact qian boundary", 1000, "1.0千"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.FormatVolume(tc.value))
		})
	}
}

func TestChangeRate(t *testing.T) {
	cases := []struct {
		name        string
		open, close float64
		want        float64
	}{
		{"gain", 100, 105, 5.00},
		{"loss", 200, 190, -5.00},
		{"flat", 100, 100, 0},
		{"zero open", 0, 105, 0},
		{"rounding", 3, 4, 33.33},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.ChangeRate(tc.open, tc.close))
		})
	}
}

func TestVolume24hUSDT(t *testing.T) {
	// Average of the 24h open and the last trade, times the quote volume.
	assert.Equal(t, 102500.0, domain.Volume24hUSDT(100, 105, 1000))
	assert.Equal(t, 10250.0, domain.Volume24hUSDT(100, 105, 100))

	// A missing open or quote volume disables the estimate.
	assert.Equal(t, 0.0, domain.Volume24hUSDT(0, 105, 1000))
	assert.Equal(t, 0.0, domain.Volume24hUSDT(100, 105, 0))

	// A zero last price alone still yields an estimate.
	assert.Equal(t, 50000.0, domain.Volume24hUSDT(100, 0, 1000))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, domain.Round2(1.234))
	assert.Equal(t, 1.24, domain.Round2(1.236))
	assert.Equal(t, -2.5, domain.Round2(-2.499))
}
