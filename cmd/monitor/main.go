package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
	"github.com/vitos/swap_monitor/internal/infrastructure/exchange"
	"github.com/vitos/swap_monitor/internal/infrastructure/logger"
	"github.com/vitos/swap_monitor/internal/infrastructure/storage"
	"github.com/vitos/swap_monitor/internal/usecase"
	"github.com/vitos/swap_monitor/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	RateLimit struct {
		WindowRequests int `yaml:"window_requests"`
		WindowMs       int `yaml:"window_ms"`
		MinSpacingMs   int `yaml:"min_spacing_ms"`
	} `yaml:"rate_limit"`
	Monitor struct {
		MaxProducts  int `yaml:"max_products"`
		SweepMinutes int `yaml:"sweep_minutes"`
	} `yaml:"monitor"`
	Reconnect struct {
		BaseSeconds int `yaml:"base_seconds"`
		MaxSeconds  int `yaml:"max_seconds"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"reconnect"`
	Recorder struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"recorder"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Optional refresh history recorder
	var recorder domain.Recorder
	if cfg.Recorder.Enabled {
		hist, err := storage.NewHistoryStore(cfg.Recorder.Path)
		if err != nil {
			log.Fatal("Failed to init history store", zap.Error(err))
		}
		defer hist.Close()
		recorder = hist
	}

	// 4. REST client behind the shared rate limiter
	limiterCfg := exchange.DefaultRateLimiterConfig()
	if cfg.RateLimit.WindowRequests > 0 {
		limiterCfg.WindowRequests = cfg.RateLimit.WindowRequests
	}
	if cfg.RateLimit.WindowMs > 0 {
		limiterCfg.Window = time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond
	}
	if cfg.RateLimit.MinSpacingMs > 0 {
		limiterCfg.MinSpacing = time.Duration(cfg.RateLimit.MinSpacingMs) * time.Millisecond
	}
	limiter := exchange.NewRateLimiter(limiterCfg)

	clientCfg := exchange.DefaultOKXClientConfig()
	if cfg.Exchange.RESTEndpoint != "" {
		clientCfg.BaseURL = cfg.Exchange.RESTEndpoint
	}
	provider := exchange.NewOKXClient(clientCfg, limiter, log)

	// 5. Store and refresh machinery
	store := usecase.NewInstrumentStore(cfg.Monitor.MaxProducts)
	symbols := usecase.NewSymbolSet()

	schedulerCfg := usecase.DefaultRefreshSchedulerConfig()
	scheduler := usecase.NewRefreshScheduler(schedulerCfg, provider, store, symbols, recorder, log)

	// 6. Stream supervisor
	supCfg := usecase.DefaultSupervisorConfig()
	if cfg.Monitor.MaxProducts > 0 {
		supCfg.MaxProducts = cfg.Monitor.MaxProducts
	}
	if cfg.Reconnect.BaseSeconds > 0 {
		supCfg.BackoffBase = time.Duration(cfg.Reconnect.BaseSeconds) * time.Second
	}
	if cfg.Reconnect.MaxSeconds > 0 {
		supCfg.BackoffMax = time.Duration(cfg.Reconnect.MaxSeconds) * time.Second
	}
	if cfg.Reconnect.MaxAttempts > 0 {
		supCfg.MaxAttempts = cfg.Reconnect.MaxAttempts
	}

	streamCfg := exchange.DefaultStreamConfig()
	if cfg.Exchange.WSEndpoint != "" {
		streamCfg.URL = cfg.Exchange.WSEndpoint
	}
	newStream := func() domain.StreamConnection {
		return exchange.NewStreamConn(streamCfg, log)
	}
	supervisor := usecase.NewIngestionSupervisor(supCfg, provider, store, symbols, newStream, log)

	// 7. Web surface
	monitor := usecase.NewMonitorService(store, symbols, scheduler, supervisor, log)
	hub := web.NewHub(monitor, log)
	supervisor.SetStatusListener(hub.NotifyStatus)
	server := web.NewServer(cfg.Server.Port, hub, monitor, log)

	// 8. Run everything until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	monitor.BindLifetime(gctx)
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return scheduler.RunOpenInterest(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		sweep := time.Duration(cfg.Monitor.SweepMinutes) * time.Minute
		if sweep <= 0 {
			sweep = 10 * time.Minute
		}
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if removed := store.SweepExpired(domain.StaleWindow); removed > 0 {
					log.Info("swept expired instruments", zap.Int("removed", removed))
				}
			}
		}
	})
	g.Go(func() error { return server.Start() })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("Monitor started", zap.Int("port", cfg.Server.Port))
	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("Monitor stopped", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
