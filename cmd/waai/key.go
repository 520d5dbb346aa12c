package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wa-assistant/internal/settings"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the OpenAI API key",
	Long:  "Store, inspect and remove the OpenAI API key kept in the OS keyring",
}

var keySetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Store the API key",
	Long:  "Store the API key in the OS keyring. Without an argument the key is read from a masked prompt.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeySet,
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	Args:  cobra.NoArgs,
	RunE:  runKeyStatus,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runKeyDelete,
}

func init() {
	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyStatusCmd)
	keyCmd.AddCommand(keyDeleteCmd)
}

func keyStore() *settings.KeyStore {
	return settings.NewKeyStore(cfg.KeyringService, cfg.OpenAIAPIKey)
}

func runKeySet(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		input, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("OpenAI API key")
		if err != nil {
			return err
		}
		key = input
	}

	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "sk-") {
		pterm.Warning.Println("The key does not look like an OpenAI key (expected an sk- prefix)")
	}
	if err := keyStore().Set(key); err != nil {
		return err
	}
	pterm.Success.Printfln("API key stored in keyring service %q", cfg.KeyringService)
	return nil
}

func runKeyStatus(cmd *cobra.Command, args []string) error {
	keys := keyStore()
	rows := [][]string{
		{"Check", "Result"},
		{"Keyring service", cfg.KeyringService},
		{"Key source", keys.Source()},
	}

	inv, err := invoker(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), runtimeTimeout)
	defer cancel()
	if configured, err := inv.KeyConfigured(ctx); err != nil {
		rows = append(rows, []string{"Background process", "unreachable: " + err.Error()})
	} else {
		rows = append(rows, []string{"Background process", fmt.Sprintf("configured=%t", configured)})
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	return nil
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	if err := keyStore().Delete(); err != nil {
		return err
	}
	pterm.Success.Println("API key removed from keyring")
	return nil
}
