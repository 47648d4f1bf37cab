package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/api"
	"github.com/spreads/client/internal/certs"
	"github.com/spreads/client/internal/config"
	apperrors "github.com/spreads/client/internal/errors"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "spreadsctl",
		Short:         "Terminal client for the spreads book scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			return ctx.setupLogging(cmd.Annotations["screen"] == "true", cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default ~/.spreads/client.toml)")
	flags.StringVarP(&ctx.serverFlag, "server", "s", "", "Server origin, e.g. http://scanner.local:5000")
	flags.StringVar(&ctx.logFileFlag, "log-file", "", "Write logs to this file")
	flags.StringVar(&ctx.fingerprintFlag, "fingerprint", "", "Trust an https server whose certificate has this SHA-256 fingerprint")

	rootCmd.AddCommand(newWorkflowCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newCaptureCommand(ctx))
	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newSimulateCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// commandContext carries the persistent flags and the lazily loaded
// configuration.
type commandContext struct {
	configFlag      string
	serverFlag      string
	logFileFlag     string
	fingerprintFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logFile *os.File
}

// ensureConfig loads the config file once and applies flag overrides.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if c.serverFlag != "" {
			cfg.Server = strings.TrimSpace(c.serverFlag)
		}
		if c.logFileFlag != "" {
			cfg.LogFile = c.logFileFlag
		}
		if c.fingerprintFlag != "" {
			cfg.Fingerprint = c.fingerprintFlag
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiClient returns a REST client for the configured server.
func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(cfg.Server, cfg.RequestTimeout())
	if err != nil {
		return nil, err
	}
	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		client.UseTLS(tlsCfg)
	}
	return client, nil
}

// tlsConfig returns the pinned client TLS configuration, or nil when no
// fingerprint is configured and the system roots apply.
func (c *commandContext) tlsConfig() (*tls.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Fingerprint == "" {
		return nil, nil
	}
	return certs.PinnedConfig(cfg.Fingerprint)
}

// setupLogging routes the standard logger. With a log file configured
// everything goes there. Otherwise plain commands log to stderr and
// screens, which own the terminal, discard logs.
func (c *commandContext) setupLogging(screen bool, stderr io.Writer) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.LogFile == "" {
		if screen {
			log.SetOutput(io.Discard)
		} else {
			log.SetOutput(stderr)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	c.logFile = f
	log.SetOutput(f)
	return nil
}

func (c *commandContext) closeLog() {
	if c.logFile != nil {
		log.SetOutput(os.Stderr)
		c.logFile.Close()
		c.logFile = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// describeError renders an error with its suggested next step, if any.
func describeError(err error) string {
	code, msg := apperrors.ToCodeAndMessage(err)
	if code == apperrors.CodeUnknown {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(msg)
	fields := apperrors.FieldErrors(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, fields[name])
	}
	if next := apperrors.NextAction(code); next != "" {
		b.WriteString("\n  hint: " + next)
	}
	return b.String()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the client version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spreadsctl %s\n", Version)
		},
	}
}
