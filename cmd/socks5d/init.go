package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/orvantis/socks5d/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func initCmd() *cobra.Command {
	var outPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a configuration file",
		Long: `Generate a socks5d configuration file.

When run in a terminal without --yes, this walks through an
interactive wizard for the listen address, logging, and relay
settings. With --yes (or outside a terminal), it writes the built-in
defaults unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			interactive := !yes && term.IsTerminal(int(os.Stdin.Fd()))
			if interactive {
				if err := runWizard(cfg); err != nil {
					return fmt.Errorf("setup wizard failed: %w", err)
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("generated config is invalid: %w", err)
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}

			fmt.Printf("Wrote configuration to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "./socks5d.yaml", "Path to write the generated configuration")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the interactive wizard and write defaults")

	return cmd
}

// runWizard collects listen, logging, and relay settings with an
// interactive huh form and applies them to cfg in place.
func runWizard(cfg *config.Config) error {
	host := cfg.Listen.Host
	port := strconv.Itoa(cfg.Listen.Port)
	logLevel := cfg.Log.Level
	rateLimit := ""
	enableRateLimit := false

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen host").
				Description("Address the proxy accepts client connections on").
				Value(&host),
			huh.NewInput().
				Title("Listen port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n <= 0 || n > 65535 {
						return fmt.Errorf("enter a port between 1 and 65535")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&logLevel),
			huh.NewConfirm().
				Title("Limit relay throughput?").
				Value(&enableRateLimit),
			huh.NewInput().
				Title("Bytes per second per direction").
				Description("Only used if throughput limiting is enabled").
				Value(&rateLimit),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Listen.Host = host
	cfg.Listen.Port, _ = strconv.Atoi(port)
	cfg.Log.Level = logLevel

	if enableRateLimit {
		if n, err := strconv.ParseInt(rateLimit, 10, 64); err == nil && n > 0 {
			cfg.Relay.RateLimitBytesPerSec = n
		}
	}

	return nil
}
