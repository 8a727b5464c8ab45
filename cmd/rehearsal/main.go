// Command rehearsal is a terminal app for rehearsing spoken conversations in
// another language against a live AI conversation partner.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/konxu/rehearsal/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var location string
	var userContext string

	cmd := &cobra.Command{
		Use:   "rehearsal",
		Short: "Rehearse real conversations in another language",
		Long: `Rehearsal drops you into a roleplay scenario with a live AI conversation
partner: a barista in Paris, a taxi driver in Mexico City. You speak into the
microphone, the partner speaks back, and afterwards you get corrections and
phrases to study.

Requires a Gemini API key via GEMINI_API_KEY, a .env file, or the config file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runSession(cfg, location, userContext)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVarP(&location, "location", "l", "Paris", "where the scenario takes place")
	cmd.Flags().StringVar(&userContext, "about", "", "a sentence about you, to tailor the scenario")
	cmd.AddCommand(devicesCmd())
	return cmd
}

func devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd.OutOrStdout())
		},
	}
}
