package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitevault/agent/internal/client"
	"sitevault/agent/internal/config"
	"sitevault/agent/internal/logger"
	"sitevault/agent/internal/orchestrator"
	"sitevault/agent/internal/progress"
	"sitevault/agent/internal/ui"
)

// Exit codes reported to calling scripts.
const (
	exitOK       = 0
	exitBadArgs  = 2
	exitTransfer = 3
	exitInternal = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath     = flag.String("config", "", "Path to configuration file")
		url         = flag.String("url", "", "Backup endpoint base URL")
		key         = flag.String("key", "", "Access key for the endpoint")
		output      = flag.String("output", "", "Directory the archive is written to")
		concurrency = flag.Int("concurrency", 0, "Parallel transfer workers")
		budget      = flag.Duration("budget", 10*time.Second, "Time budget per database export slice")
		quiet       = flag.Bool("quiet", false, "Disable the interactive display, log lines only")
	)
	flag.Parse()

	cfg := config.Init(*cfgPath)
	if *url != "" {
		cfg.URL = *url
	}
	if *key != "" {
		cfg.AccessKey = *key
	}
	if *output != "" {
		cfg.OutputDir = *output
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if cfg.URL == "" {
		fmt.Fprintln(os.Stderr, "no endpoint URL: pass -url or set agent.url in the config file")
		return exitBadArgs
	}
	if cfg.AccessKey == "" {
		fmt.Fprintln(os.Stderr, "no access key: pass -key or set agent.access_key in the config file")
		return exitBadArgs
	}
	if info, err := os.Stat(cfg.OutputDir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "output directory %q is not usable\n", cfg.OutputDir)
		return exitBadArgs
	}
	if err := logger.Init(cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", cfg.LogPath, err)
		return exitBadArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warnf("shutdown signal received, cancelling run")
		cancel()
	}()

	api := client.New(cfg.URL, cfg.AccessKey)
	tracker := &progress.Tracker{}

	var archive string
	var err error
	if *quiet {
		orch := orchestrator.New(api, tracker, orchestrator.Options{
			OutputDir:     cfg.OutputDir,
			Concurrency:   cfg.Concurrency,
			ProcessBudget: *budget,
			OnState: func(s orchestrator.State) {
				logger.Infof("phase: %s", s)
			},
		})
		archive, err = orch.Run(ctx)
	} else {
		archive, err = ui.Run(tracker, cancel, func(onState func(orchestrator.State)) (string, error) {
			orch := orchestrator.New(api, tracker, orchestrator.Options{
				OutputDir:     cfg.OutputDir,
				Concurrency:   cfg.Concurrency,
				ProcessBudget: *budget,
				OnState:       onState,
			})
			return orch.Run(ctx)
		})
	}

	if err != nil {
		logger.Errorf("backup failed: %v", err)
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		var he *client.HTTPError
		if errors.Is(err, orchestrator.ErrTransfer) || errors.As(err, &he) ||
			errors.Is(err, context.Canceled) {
			return exitTransfer
		}
		return exitInternal
	}
	logger.Infof("backup complete: %s", archive)
	fmt.Println(archive)
	return exitOK
}
