package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"countdown/internal/config"
	"countdown/internal/filecache"
	"countdown/internal/jobs"
	appLog "countdown/internal/log"
	"countdown/internal/source"
	"countdown/internal/ttlcache"
	appVersion "countdown/internal/version"
	"countdown/internal/web"
)

// serveFlags holds CLI overrides for the config file.
type serveFlags struct {
	configPath string
	listen     string
	dataDir    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve schedule data and the static front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "/etc/countdown/config.yaml", "path to config file")
	cmd.Flags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "", "source data directory (overrides config if set)")
	return cmd
}

func runServe(parent context.Context, flags serveFlags) error {
	appLog.Info("countdown starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return err
	}

	// CLI flags override config file values if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dataDir != "" {
		conf.DataDir = flags.dataDir
	}
	appLog.SetLevel(appLog.Level(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"data_dir", conf.DataDir,
		"static_dir", conf.StaticDir,
		"cache_ttl", conf.CacheTTL(),
		"file_cache_ttl", conf.FileCacheTTL(),
		"legacy_cache_reset", conf.LegacyCacheReset,
		"remote_timeout", conf.RemoteTimeout(),
		"version_check", conf.VersionCheck.URL != "",
	)

	var cacheOpts []ttlcache.Option
	if conf.LegacyCacheReset {
		cacheOpts = append(cacheOpts, ttlcache.WithWholeTableReset())
	}

	resolver := source.NewResolver(conf.DataDir, source.NewRemote(conf.RemoteTimeout()), conf.CacheTTL(), cacheOpts...)
	files := filecache.New(conf.StaticDir, conf.FileCacheTTL(), cacheOpts...)
	localVersion := appVersion.NewLocal(conf.VersionFile, conf.CacheTTL(), cacheOpts...)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	sched := jobs.New(ctx)
	caches := append(resolver.Caches(), files.Sweeper(), localVersion.Sweeper())
	if err := sched.AddSweep(conf.SweepCron, caches...); err != nil {
		return err
	}
	if conf.VersionCheck.URL != "" {
		checker := appVersion.NewChecker(conf.VersionCheck.URL, localVersion, conf.RemoteTimeout())
		if err := sched.AddFunc(conf.VersionCheck.Cron, "version check", checker.Run); err != nil {
			return err
		}
		go checker.Run(ctx)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	srv := web.NewServer(conf, resolver, files, localVersion)
	if err := web.StartServer(ctx, conf, srv); err != nil {
		appLog.Error("HTTP server failed", err)
		return err
	}

	appLog.Info("countdown exiting")
	return nil
}
