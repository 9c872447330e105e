package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/policy"
)

func whitelistCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage sites trusted with secret items",
		Long: `Secret items are only disclosed on whitelisted sites. Patterns match the
host name; "*" stands for exactly one label, so "*.example.com" matches
"shop.example.com" but not "example.com".`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trusted site patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			patterns, err := a.vault.Whitelist(cmd.Context())
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				fmt.Println(mutedStyle.Render("No trusted sites."))
			}
			for _, p := range patterns {
				fmt.Println(p)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <pattern>",
		Short: "Trust a site pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := policy.CompilePattern(args[0]); err != nil {
				return err
			}
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.vault.AddWhitelist(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Trusted " + args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <pattern>",
		Short: "Stop trusting a site pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.vault.RemoveWhitelist(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Removed " + args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <site>",
		Short: "Report whether a site or URL is trusted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			wl, err := a.whitelist(cmd.Context())
			if err != nil {
				return err
			}
			host := policy.Host(args[0])
			if wl.Allows(host) {
				fmt.Println(successStyle.Render(host + " is trusted"))
			} else {
				fmt.Println(errorStyle.Render(host + " is not trusted; secrets fill decoys"))
			}
			return nil
		},
	})
	return cmd
}
