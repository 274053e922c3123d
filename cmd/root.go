// Package cmd wires the cobra CLI surface: a root command carrying shared
// flags plus a serve subcommand that boots the webhook server, adapted from
// the teacher's rootCmd/initFlags/initEnvConfig split.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Course scheduling chat assistant",
	Long:  "A conversational assistant that tracks course schedules over a chat-platform webhook.",
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
