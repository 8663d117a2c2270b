package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"tonstation_bot/internal/config"
	"tonstation_bot/internal/engine"
	"tonstation_bot/internal/httpapi"
	"tonstation_bot/internal/logbus"
	"tonstation_bot/internal/notify"
	"tonstation_bot/internal/provider/tonstation"
	"tonstation_bot/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	logLevel := flag.String("log-level", logbus.LevelInfo, "minimum console level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.AddSink(logbus.NewConsole(nil, *logLevel))
	defer bus.Close()

	_, _ = color.New(color.FgYellow).Fprintln(color.Output,
		"Should an error arise, retrieve a fresh query_id into "+cfg.Data.CredentialsPath+" before rerunning.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *sqlite.Store
	if cfg.Storage.Enabled {
		store, err = sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer store.Close()
		store.SetRetention(cfg.Storage.KeepPasses)
	}

	opts := engine.Options{
		Provider: tonstation.New(cfg.Provider, cfg.Proxy, cfg.Limits, bus),
		Bus:      bus,
		Loop:     cfg.Loop,
		Data:     cfg.Data,
		Quests:   cfg.Quests,
	}
	if store != nil {
		opts.Recorder = store
	}

	var emailNotifier *notify.EmailNotifier
	if cfg.Notify.Email.Enabled {
		emailNotifier = notify.NewEmailNotifier(cfg.Notify.Email, bus)
		opts.Notifier = emailNotifier
	}

	eng := engine.New(opts)
	if store != nil {
		// 通过 API 改过的循环设置优先于配置文件
		if saved, ok, err := store.GetLoopSettings(ctx); err != nil {
			bus.Warn("load loop settings failed", map[string]any{"error": err.Error()})
		} else if ok {
			eng.SetLoopSettings(saved)
		}
	}

	var server *http.Server
	if cfg.Server.Enabled {
		api := httpapi.New(httpapi.Options{
			Cfg:    cfg,
			Bus:    bus,
			Store:  store,
			Engine: eng,
		})
		server = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			bus.Info("status server listening", map[string]any{"addr": cfg.Server.Addr})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				bus.Error("http server error", map[string]any{"error": err.Error()})
			}
		}()
	}

	runErr := eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	if emailNotifier != nil {
		_ = emailNotifier.Close(shutdownCtx)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		bus.Error(runErr.Error(), nil)
		stop()
		log.Fatalf("run: %v", runErr)
	}
	bus.Info("bot stopped", nil)
}
