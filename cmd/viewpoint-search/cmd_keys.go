package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/viewpoint-search/internal/auth"
)

var (
	keyName  string
	keyPlain string

	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Create API keys for the server's API_KEYS setting",
	}

	keysGenerateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate a new API key and its API_KEYS entry",
		RunE:  runKeysGenerate,
	}

	keysHashCmd = &cobra.Command{
		Use:   "hash",
		Short: "Hash an existing API key into an API_KEYS entry",
		RunE:  runKeysHash,
	}
)

func init() {
	keysGenerateCmd.Flags().StringVar(&keyName, "name", "", "name the key authenticates as")
	keysHashCmd.Flags().StringVar(&keyName, "name", "", "name the key authenticates as")
	keysHashCmd.Flags().StringVar(&keyPlain, "key", "", "plaintext key")
	_ = keysGenerateCmd.MarkFlagRequired("name")
	_ = keysHashCmd.MarkFlagRequired("name")
	_ = keysHashCmd.MarkFlagRequired("key")

	keysCmd.AddCommand(keysGenerateCmd, keysHashCmd)
}

func checkKeyName(name string) error {
	if name == "" || strings.ContainsAny(name, ":, ") {
		return fmt.Errorf("--name must be non-empty and contain no ':', ',' or spaces")
	}
	return nil
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	if err := checkKeyName(keyName); err != nil {
		return err
	}
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key (shown once): %s\n", key)
	fmt.Fprintf(out, "API_KEYS entry:       %s:%s\n", keyName, hash)
	return nil
}

func runKeysHash(cmd *cobra.Command, args []string) error {
	if err := checkKeyName(keyName); err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(keyPlain)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", keyName, hash)
	return nil
}
