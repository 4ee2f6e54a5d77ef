package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talostrading/latency/config"
	"github.com/talostrading/latency/histlog"
	"github.com/talostrading/latency/logging"
	"github.com/talostrading/latency/recorder"
	"github.com/talostrading/latency/server"
	"github.com/talostrading/latency/wire"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	config.SetServerDefaults(v)

	cmd := &cobra.Command{
		Use:          "latency-server",
		Short:        "latency-server records the one-way latency of latency-client requests into interval logs.",
		Version:      wire.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			var cfg config.Server
			if err := config.Load(v, file, &cfg); err != nil {
				config.LogValidationErrors(err)
				return err
			}
			if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a configuration file")
	flags.String("listen", "127.0.0.1:8080", "host:port of the HTTP listener")
	flags.String("tls-listen", "", "host:port of the HTTPS listener, disabled when empty")
	flags.String("tls-cert-file", "", "PEM certificate of the HTTPS listener")
	flags.String("tls-key-file", "", "PEM key of the HTTPS listener")
	flags.String("hist-dir", "var/hist", "directory of the interval logs")
	flags.String("hist-series", "latency_server", "series name of the interval logs")
	flags.Duration("hist-interval", histlog.DefaultFlushInterval, "interval between histogram flushes")
	flags.Bool("keep-alive", true, "keep client connections open between requests")
	flags.Bool("metrics", true, "serve prometheus metrics on /metrics")
	flags.Bool("profiling", false, "serve fgprof profiles on /debug/fgprof")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", logging.FormatText, "log format, text or json")

	for key, name := range map[string]string{
		"listen":        "listen",
		"tls_listen":    "tls-listen",
		"tls.cert_file": "tls-cert-file",
		"tls.key_file":  "tls-key-file",
		"hist.dir":      "hist-dir",
		"hist.series":   "hist-series",
		"hist.interval": "hist-interval",
		"keep_alive":    "keep-alive",
		"metrics":       "metrics",
		"profiling":     "profiling",
		"log.level":     "log-level",
		"log.format":    "log-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(ctx context.Context, cfg config.Server) error {
	master, err := histlog.New(cfg.Hist.Dir, cfg.Hist.Series, wire.MasterTag, cfg.Hist.Interval)
	if err != nil {
		return errors.Wrap(err, "could not create the master histogram log")
	}
	log.WithField("path", master.Path()).Info("writing interval log")

	rec := recorder.New(master)
	srv := server.New(rec, cfg, logging.Thread("server"))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := srv.ListenAndServe(ctx)

	// Requests are done once the servers are shut down; the recorder
	// flushes what is left.
	if err := rec.Close(); err != nil {
		log.WithError(err).Error("could not close the recorder")
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
