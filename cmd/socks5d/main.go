// Package main provides the CLI entry point for the SOCKS5 proxy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "socks5d",
		Short: "socks5d - a SOCKS5 proxy server",
		Long: `socks5d is a standalone SOCKS5 proxy server (RFC 1928).

It implements the no-authentication method and the CONNECT command
against IPv4, IPv6, and domain-name destinations, relaying traffic
full-duplex once a destination connection succeeds.`,
		Version: version,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "start", Title: "Getting Started:"})
	rootCmd.AddGroup(&cobra.Group{ID: "admin", Title: "Administration:"})

	serve := serveCmd()
	serve.GroupID = "start"
	rootCmd.AddCommand(serve)

	initC := initCmd()
	initC.GroupID = "start"
	rootCmd.AddCommand(initC)

	validate := validateCmd()
	validate.GroupID = "admin"
	rootCmd.AddCommand(validate)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
