package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/config"
)

func configCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and change settings",
	}
	cmd.AddCommand(configShowCmd(root))
	cmd.AddCommand(configSetCmd(root))
	cmd.AddCommand(configSetAPIKeyCmd(root))
	cmd.AddCommand(configResetCmd(root))
	return cmd
}

func configShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print settings (API key redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Initialize(root.configPath); err != nil {
				return err
			}
			for _, s := range config.Global().GetSections() {
				fmt.Println(headerStyle.Render(s.Title()) + " " + mutedStyle.Render(s.ID()))
				data := s.Data()
				keys := make([]string, 0, len(data))
				for k := range data {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					v := fmt.Sprint(data[k])
					if k == "api_key" && v != "" {
						v = redact(v)
					}
					fmt.Printf("  %s %s\n", keyStyle.Render(k), v)
				}
			}
			return nil
		},
	}
}

func configSetCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "set <section.key> <value>",
		Short:   "Change one setting",
		Example: "  autofill config set autofill.strategy cluster\n  autofill config set llm.provider remote",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, key, ok := strings.Cut(args[0], ".")
			if !ok {
				return fmt.Errorf("setting must be <section>.<key>, got %q", args[0])
			}
			if err := config.Initialize(root.configPath); err != nil {
				return err
			}
			if err := config.Global().Set(section, key, args[1]); err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("%s = %s", args[0], args[1])))
			return nil
		},
	}
}

func configSetAPIKeyCmd(root *rootFlags) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "set-api-key",
		Short: "Store the remote API key in the OS keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove {
				if err := config.DeleteAPIKey(); err != nil {
					return err
				}
				fmt.Println(successStyle.Render("API key removed"))
				return nil
			}
			key, err := promptPassword(cmd.Context(), "API key", "Stored in the OS keyring, never in the config file")
			if err != nil {
				return err
			}
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("API key is empty")
			}
			if err := config.StoreAPIKey(strings.TrimSpace(key)); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("API key stored"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "remove the stored key")
	return cmd
}

func configResetCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Initialize(root.configPath); err != nil {
				return err
			}
			m := config.Global()
			m.ResetAll()
			if err := m.SaveAll(); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Settings reset"))
			return nil
		},
	}
}

func redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
