package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/orvantis/socks5d/internal/config"
	"github.com/spf13/cobra"
)

var (
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle = lipgloss.NewStyle().Faint(true)
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config file]",
		Short: "Validate a configuration file",
		Long:  "Parse and validate a socks5d configuration file without starting the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				fmt.Println(errStyle.Render("✗ invalid configuration"))
				return err
			}

			fmt.Println(okStyle.Render("✓ configuration is valid"))
			fmt.Println(dimStyle.Render(cfg.String()))
			return nil
		},
	}

	return cmd
}
