/*
Package main is the entry point for the chat relay.

The serve command loads configuration, initializes logging, runs the WebSocket and framed TCP
listeners in front of a single chat hub and shuts everything down gracefully on SIGINT or
SIGTERM. The client command is a line-oriented terminal client for either transport.
*/
package main

import (
	"github.com/spf13/cobra"

	"chatrelay/internal/pkg/logx"
)

var rootCmd = &cobra.Command{
	Use:           "chatrelay",
	Short:         "A real-time chat relay over WebSocket and framed TCP.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newClientCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logx.Fatal(err, "chatrelay exited with an error")
	}
}
