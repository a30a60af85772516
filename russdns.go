package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/russdns/russdns/api"
	"github.com/russdns/russdns/blocklist"
	"github.com/russdns/russdns/cache"
	"github.com/russdns/russdns/config"
	"github.com/russdns/russdns/forwarder"
	"github.com/russdns/russdns/metrics"
	"github.com/russdns/russdns/resolver"
	"github.com/russdns/russdns/server"
)

const version = "1.0.0"

var flagcfgpath string

var rootCmd = &cobra.Command{
	Use:           "russdns",
	Short:         "Filtering DNS forwarder",
	Long:          "russdns answers blocked domains locally and forwards everything else to one upstream resolver.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), flagcfgpath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("russdns v" + version)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and load the blocklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return check(cmd.OutOrStdout(), flagcfgpath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagcfgpath, "config", "c", "russdns.conf",
		"location of the config file, if config file not found, a config will generate")

	rootCmd.Version = version
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)
}

// setupLogging installs the default logger for cfg. It returns the opened
// log file, nil when logging to stdout only.
func setupLogging(cfg *config.Config) (*os.File, error) {
	logger := zlog.NewStructured()

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logger.SetLevel(zlog.LevelDebug)
	case "", "info":
		logger.SetLevel(zlog.LevelInfo)
	case "warn":
		logger.SetLevel(zlog.LevelWarn)
	case "error":
		logger.SetLevel(zlog.LevelError)
	default:
		return nil, fmt.Errorf("log verbosity level unknown: %q", cfg.LogLevel)
	}

	var logFile *os.File

	if cfg.LogFile == "" {
		logger.SetWriter(zlog.StdoutTerminal())
	} else {
		var err error
		logFile, err = os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetWriter(io.MultiWriter(os.Stdout, logFile))
	}

	zlog.SetDefault(logger)

	return logFile, nil
}

func check(out io.Writer, path string) error {
	cfg, err := config.Load(path, version)
	if err != nil {
		return err
	}

	bl := blocklist.New(cfg)
	if err := bl.Reload(); err != nil {
		return err
	}

	fmt.Fprintf(out, "config %s is valid\n", path)
	fmt.Fprintf(out, "upstream: %s, block action: %s, sinkhole: %s\n", cfg.Upstream, cfg.BlockAction, cfg.SinkholeIP)
	fmt.Fprintf(out, "blocked domains: %d from %d files\n", bl.Length(), len(bl.Files()))

	return nil
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path, version)
	if err != nil {
		return err
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	zlog.Info("Starting russdns...", "version", version, "action", cfg.BlockAction.String())

	bl := blocklist.New(cfg)
	if err := bl.Reload(); err != nil {
		return err
	}

	c, err := cache.New[[]byte](cfg.CacheSize)
	if err != nil {
		return err
	}

	m := metrics.New(nil)

	fwd := forwarder.New(cfg)

	res, err := resolver.New(cfg, bl, c, fwd, resolver.WithMetrics(m))
	if err != nil {
		return err
	}

	zlog.Info("Forwarding queries", "upstream", fwd.Addr(), "timeout", cfg.QueryTimeout().String())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(cfg, res, server.WithMetrics(m)).ListenAndServe(ctx)
	})

	g.Go(func() error {
		return api.New(cfg, bl, c, m).Run(ctx)
	})

	if len(bl.Files()) > 0 {
		w, err := blocklist.NewWatcher(bl)
		if err != nil {
			zlog.Warn("Blocklist watcher disabled", "error", err.Error())
		} else {
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	g.Go(func() error {
		reloadOnHangup(ctx, bl)
		return nil
	})

	err = g.Wait()

	zlog.Info("Stopping russdns...")

	return err
}

// reloadOnHangup reloads bl on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, bl *blocklist.BlockList) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := bl.Reload(); err != nil {
				zlog.Error("Blocklist reload failed", "error", err.Error())
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zlog.Error("russdns failed", "error", err.Error())
		os.Exit(1)
	}
}
