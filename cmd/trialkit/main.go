package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errIncomplete signals a session that ran but had failed or skipped trials.
var errIncomplete = errors.New("session incomplete")

var rootCmd = &cobra.Command{
	Use:           "trialkit",
	Short:         "Run keyboard-response trial sessions in the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newRunCmd(), newValidateCmd())
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errIncomplete) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
