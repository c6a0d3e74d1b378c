// Package main is the entry point for the routecraft CLI.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/routecraftjs/routecraft"
	"github.com/routecraftjs/routecraft/internal/adapters/fetchsource"
	"github.com/routecraftjs/routecraft/internal/adapters/githubsink"
	"github.com/routecraftjs/routecraft/internal/adapters/imapsource"
	"github.com/routecraftjs/routecraft/internal/adapters/logdestination"
	"github.com/routecraftjs/routecraft/internal/adapters/markdownsource"
	"github.com/routecraftjs/routecraft/internal/adapters/mqttchannel"
	"github.com/routecraftjs/routecraft/internal/adapters/qrsink"
	"github.com/routecraftjs/routecraft/internal/adapters/timersource"
	"github.com/routecraftjs/routecraft/internal/buildinfo"
	"github.com/routecraftjs/routecraft/internal/config"
	"github.com/routecraftjs/routecraft/internal/store/sqlitestore"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "run":
			runServe(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("routecraft - integration routing runtime")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       Build and run the routes described in the config file")
	fmt.Println("  version   Print build information")
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting routecraft", "version", buildinfo.Version, "commit", buildinfo.GitCommit)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded", "path", cfgPath, "store_backend", cfg.Store.Backend)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	rcLogger := routecraft.NewLogger(logger)

	var opts []routecraft.ContextOption
	if cfg.Store.Backend == "sqlite" {
		backend, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			logger.Error("failed to open sqlite store", "path", cfg.Store.Path, "error", err)
			os.Exit(1)
		}
		logger.Info("sqlite store opened", "path", cfg.Store.Path)
		opts = append(opts, routecraft.WithStoreBackend(backend))
	}

	rc := routecraft.NewContext("routecraft", rcLogger, opts...)
	builder := routecraft.NewBuilder()

	logDest := logdestination.New(rcLogger, logdestination.Options{})

	for _, t := range cfg.Timers {
		builder.ID(t.ID).
			From(timersource.New(timersource.Options{Interval: t.Interval, Repeat: t.Repeat})).
			To(logDest)
	}
	for _, f := range cfg.Fetches {
		builder.ID(f.ID).
			From(fetchsource.New(fetchsource.Options{URL: f.URL, Interval: f.Interval}, rcLogger)).
			To(logDest)
	}
	for _, m := range cfg.Markdown {
		builder.ID(m.ID).
			From(markdownsource.New(markdownsource.Options{Path: m.Path})).
			To(logDest)
	}
	var qrDest routecraft.Destination
	if cfg.QR.OutputDir != "" {
		if err := os.MkdirAll(cfg.QR.OutputDir, 0o755); err != nil {
			logger.Error("failed to create qr output directory", "path", cfg.QR.OutputDir, "error", err)
			os.Exit(1)
		}
		qrDest = qrsink.New(qrOutputWriter(cfg.QR.OutputDir), qrsink.Options{})
	}

	for _, a := range cfg.IMAP {
		builder.ID(a.ID).
			From(imapsource.New(imapsource.Options{
				Host:     a.Host,
				Port:     a.Port,
				Username: a.Username,
				Password: a.Password,
				TLS:      a.TLS,
				Folder:   a.Folder,
				Interval: a.Interval,
			}, rc.Store(), rcLogger))

		if cfg.GitHub.Repo != "" {
			dest, err := githubsink.New(nil, githubsink.Options{
				Repo:    cfg.GitHub.Repo,
				Token:   cfg.GitHub.Token,
				BaseURL: cfg.GitHub.BaseURL,
			}, rcLogger)
			if err != nil {
				logger.Error("failed to configure github sink", "error", err)
				os.Exit(1)
			}
			builder.To(dest)
		} else {
			builder.To(logDest)
		}

		// A QR code of the message (e.g. a pairing link) is filed
		// alongside whatever the primary sink does with it.
		if qrDest != nil {
			builder.To(qrDest)
		}
	}

	if cfg.MQTT.Broker != "" {
		channel := mqttchannel.New(mqttchannel.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, rcLogger)

		for _, r := range cfg.MQTT.Routes {
			builder.ID(r.ID).
				From(channel.Source(r.Topic)).
				To(logDest)
		}
	}

	if err := builder.BuildInto(rc); err != nil {
		logger.Error("failed to register routes", "error", err)
		os.Exit(1)
	}

	if err := rc.Start(); err != nil {
		logger.Error("failed to start routes", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		rc.Stop()
	}()

	<-rc.Done()
	logger.Info("routecraft stopped")
}

func qrOutputWriter(dir string) qrsink.WriterFor {
	return func(ex *routecraft.Exchange) (io.Writer, error) {
		path := dir + "/" + ex.CorrelationID() + ".png"
		return os.Create(path)
	}
}
