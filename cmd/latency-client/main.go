package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/talostrading/latency"
	"github.com/talostrading/latency/config"
	"github.com/talostrading/latency/latencyopts"
	"github.com/talostrading/latency/logging"
	"github.com/talostrading/latency/util"
	"github.com/talostrading/latency/wire"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	config.SetClientDefaults(v)

	cmd := &cobra.Command{
		Use:          "latency-client",
		Short:        "latency-client sends timestamped HTTP requests as fast as the server answers them.",
		Version:      wire.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}

			var cfg config.Client
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
	flags.StringSlice("tcp", nil, "host:port of a plain HTTP target, repeatable")
	flags.StringSlice("tls", nil, "host:port of an HTTPS target, repeatable")
	flags.Duration("throttle", 0, "pause after each completed request, e.g. 5ms")
	flags.Duration("reconnect-backoff", latency.DefaultReconnectBackoff, "wait before retrying a failed connect or handshake")
	flags.Duration("connect-timeout", latencyopts.DefaultConnectTimeout, "bound on a single connect attempt")
	flags.String("tls-server-name", "", "server name to verify, defaults to the target host")
	flags.String("tls-ca-file", "", "PEM bundle trusted for HTTPS targets")
	flags.Bool("tls-insecure", false, "skip certificate verification")
	flags.IntSlice("cpus", nil, "CPUs to pin engines to, one per engine in target order")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", logging.FormatText, "log format, text or json")

	for key, name := range map[string]string{
		"targets.tcp":              "tcp",
		"targets.tls":              "tls",
		"throttle":                 "throttle",
		"reconnect_backoff":        "reconnect-backoff",
		"connect_timeout":          "connect-timeout",
		"tls.server_name":          "tls-server-name",
		"tls.ca_file":              "tls-ca-file",
		"tls.insecure_skip_verify": "tls-insecure",
		"cpus":                     "cpus",
		"log.level":                "log-level",
		"log.format":               "log-format",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	return cmd
}

func run(ctx context.Context, cfg config.Client) error {
	stop := latency.NewStopFlag()
	engines, err := buildEngines(cfg, stop)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			log.Info("received signal, stopping")
		case <-waitEnter():
			log.Info("received enter, stopping")
		case <-stop.Done():
		}
		stop.Stop()
	}()

	var g errgroup.Group
	for _, e := range engines {
		e := e
		g.Go(func() error {
			n := e.Run()
			log.WithFields(log.Fields{
				"client": e.Label(),
				"n_sent": util.FormatCount(n),
			}).Info("engine finished")
			return nil
		})
	}
	return g.Wait()
}

func buildEngines(cfg config.Client, stop *latency.StopFlag) ([]*latency.Engine, error) {
	common := []latency.EngineOption{
		latency.WithThrottle(cfg.Throttle),
		latency.WithReconnectBackoff(cfg.ReconnectBackoff),
		latency.WithSocketOptions(latencyopts.ConnectTimeout(cfg.ConnectTimeout)),
	}

	var engines []*latency.Engine
	engineOpts := func(tag, addr string) []latency.EngineOption {
		opts := append([]latency.EngineOption{}, common...)
		opts = append(opts, latency.WithLabel(tag+"@"+addr))
		if i := len(engines); i < len(cfg.CPUs) {
			opts = append(opts, latency.WithCPUs(cfg.CPUs[i]))
		}
		return opts
	}

	tcpTag, _ := wire.ClientTag(wire.CodeRawTCP)
	for _, addr := range cfg.Targets.TCP {
		engines = append(engines, latency.NewTCPEngine(addr, stop, engineOpts(tcpTag, addr)...))
	}

	tlsTag, _ := wire.ClientTag(wire.CodeRawTLS)
	for _, addr := range cfg.Targets.TLS {
		tlsCfg, err := latency.NewTLSConfig(addr, cfg.TLS.ServerName, cfg.TLS.CAFile, cfg.TLS.InsecureSkipVerify)
		if err != nil {
			return nil, errors.Wrapf(err, "could not configure TLS for %s", addr)
		}
		engines = append(engines, latency.NewTLSEngine(addr, tlsCfg, stop, engineOpts(tlsTag, addr)...))
	}

	return engines, nil
}

// waitEnter fires when a line is read from stdin. A closed or unreadable
// stdin never fires.
func waitEnter() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			close(ch)
		}
	}()
	return ch
}
