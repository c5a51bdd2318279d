package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medude/rauc/pkg/logging"
	"github.com/medude/rauc/pkg/rauc/manifest"
	"github.com/medude/rauc/pkg/rauc/signature"
)

const version = "0.1.0"

var (
	certPath    string
	keyPath     string
	keyringPath string
	signFlag    bool
	logLevel    string
	rootCmd     *cobra.Command
)

func newProcessor(name string) *manifest.Processor {
	level := logLevel
	if level == "" {
		level = logging.GetLogLevel()
	}
	logger := logging.NewLogger(name, level, nil)

	signer := signature.NewCMSProvider(signature.SigningConfig{
		CertPath:    certPath,
		KeyPath:     keyPath,
		KeyringPath: keyringPath,
	}, logger.Named("cms"))

	return manifest.NewProcessor(signer, logger)
}

func init() {
	rootCmd = &cobra.Command{
		Use:     "raucgo",
		Short:   "Author and verify update bundles",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&certPath, "cert", "", "Signer certificate (PEM)")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "Signer private key (PEM)")
	rootCmd.PersistentFlags().StringVar(&keyringPath, "keyring", "", "Trust anchor bundle for verification (PEM)")
	rootCmd.PersistentFlags().BoolVar(&signFlag, "sign", false, "Sign (or require a signature on) the manifest")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	updateCmd := &cobra.Command{
		Use:   "update <bundle-dir>",
		Short: "Recompute image checksums and rewrite the bundle manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newProcessor("raucgo.update").UpdateManifest(args[0], signFlag); err != nil {
				return err
			}
			fmt.Printf("✓ bundle manifest updated: %s\n", args[0])
			return nil
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <bundle-dir>",
		Short: "Verify the bundle manifest and its image checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newProcessor("raucgo.verify").VerifyManifest(args[0], signFlag); err != nil {
				return err
			}
			fmt.Printf("✓ bundle verified: %s\n", args[0])
			return nil
		},
	}

	rootCmd.AddCommand(updateCmd, verifyCmd)
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
