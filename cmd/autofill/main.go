// Package main provides the autofill command line: it fills web forms from a
// local personal data vault, matching fields with a local or remote model.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/logging"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	debug      bool
	llm        llmFlags
}

type llmFlags struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	localURL   string
	localModel string
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "autofill",
		Short:         "Fill web forms from your personal data vault",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.debug || os.Getenv("AUTOFILL_DEBUG") != "" {
				logging.SetLevel(logging.LevelDebug)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: ~/.autofill/config.json)")
	pf.BoolVar(&flags.debug, "debug", false, "write debug lines to the session log")
	pf.StringVar(&flags.llm.provider, "provider", "", "model provider: local or remote")
	pf.StringVar(&flags.llm.baseURL, "base-url", "", "remote API base URL")
	pf.StringVar(&flags.llm.apiKey, "api-key", "", "remote API key (or OPENAI_API_KEY)")
	pf.StringVar(&flags.llm.model, "model", "", "remote model")
	pf.StringVar(&flags.llm.localURL, "local-url", "", "on-device runtime URL")
	pf.StringVar(&flags.llm.localModel, "local-model", "", "on-device model")

	cmd.AddCommand(fillCmd(flags))
	cmd.AddCommand(vaultCmd(flags))
	cmd.AddCommand(whitelistCmd(flags))
	cmd.AddCommand(smartAddCmd(flags))
	cmd.AddCommand(streamFillCmd(flags))
	cmd.AddCommand(watchCmd(flags))
	cmd.AddCommand(configCmd(flags))
	return cmd
}
