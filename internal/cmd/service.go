package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightmind/post-publisher/internal/api"
	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/logging"
	"github.com/brightmind/post-publisher/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// StartService runs the HTTP server until SIGINT or SIGTERM. When
// configFilePath names an existing file it is watched and hot reloaded.
func StartService(cfg *config.Config, configFilePath string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := RunService(ctx, cfg, configFilePath); err != nil {
		log.Errorf("server exited: %v", err)
	}
}

// RunService serves until ctx is cancelled.
func RunService(ctx context.Context, cfg *config.Config, configFilePath string) error {
	server := api.NewServer(cfg)

	if configFilePath != "" {
		if _, errStat := os.Stat(configFilePath); errStat == nil {
			w, err := watcher.NewWatcher(configFilePath, func(next *config.Config) {
				if errLog := logging.ConfigureLogOutput(next); errLog != nil {
					log.Errorf("failed to apply log output settings: %v", errLog)
				}
				server.UpdateConfig(next)
			})
			if err != nil {
				return err
			}
			w.SetConfig(cfg)
			if err = w.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if errStop := w.Stop(); errStop != nil {
					log.Warnf("config watcher stop error: %v", errStop)
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
