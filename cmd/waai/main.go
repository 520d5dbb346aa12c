package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/config"
	"github.com/lexiqai/wa-assistant/internal/observability"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "waai",
	Short:         "Transcribe WhatsApp voice messages and suggest replies",
	Long:          "Command line agent for the assistant server: manages the OpenAI key, transcribes audio files and page snapshots, and suggests replies to a conversation.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if server, _ := cmd.Flags().GetString("server"); server != "" {
			loaded.ServerURL = server
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			loaded.LogLevel = "debug"
			loaded.LogPretty = true
		}
		observability.InitLogger(loaded.LogLevel, loaded.LogPretty)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Assistant server base URL (defaults to SERVER_URL)")
	rootCmd.PersistentFlags().Bool("local", false, "Run the background router in-process instead of calling the server")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(pageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
