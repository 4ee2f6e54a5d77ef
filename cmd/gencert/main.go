package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talostrading/latency/internal/certs"
)

func main() {
	var (
		certFile string
		keyFile  string
		hosts    []string
		validFor = certs.DefaultValidFor
	)

	cmd := &cobra.Command{
		Use:          "gencert",
		Short:        "gencert writes a self-signed certificate and key for the latency-server HTTPS listener.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := certs.WriteFiles(certFile, keyFile, hosts, validFor); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"cert":  certFile,
				"key":   keyFile,
				"hosts": hosts,
			}).Info("wrote certificate")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&certFile, "cert", "cert.pem", "output path of the certificate")
	flags.StringVar(&keyFile, "key", "key.pem", "output path of the private key")
	flags.StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS name or IP the certificate is valid for, repeatable")
	flags.DurationVar(&validFor, "valid-for", certs.DefaultValidFor, "certificate lifetime")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
