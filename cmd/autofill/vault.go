package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/types"
	"github.com/entrhq/autofill/pkg/vault"
)

func vaultCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the personal data vault",
	}
	cmd.AddCommand(vaultStatusCmd(root))
	cmd.AddCommand(vaultListCmd(root))
	cmd.AddCommand(vaultAddCmd(root))
	cmd.AddCommand(vaultUpdateCmd(root))
	cmd.AddCommand(vaultDeleteCmd(root))
	cmd.AddCommand(vaultExportCmd(root))
	cmd.AddCommand(vaultImportCmd(root))
	cmd.AddCommand(vaultEncryptCmd(root))
	cmd.AddCommand(vaultDecryptCmd(root))
	cmd.AddCommand(vaultUnlockCmd(root))
	return cmd
}

func vaultStatusCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether Safe Mode is on",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()
			state, err := a.vault.State(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("Vault") + " " + state.String())
			return nil
		},
	}
}

func vaultListCmd(root *rootFlags) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vault items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if reveal {
				if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
					return err
				}
			}
			items, err := a.vault.Items(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderItems(items, reveal))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "decrypt and show secret values")
	return cmd
}

type itemFlags struct {
	keyname     string
	description string
	value       string
	secret      bool
	fake        string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.keyname, "key", "", "unique key name, e.g. work_email")
	fl.StringVar(&f.description, "desc", "", "what the value is, used for matching")
	fl.StringVar(&f.value, "value", "", "value to fill (prompted when empty)")
	fl.BoolVar(&f.secret, "secret", false, "gate disclosure behind the whitelist and a confirmation")
	fl.StringVar(&f.fake, "fake", "", "decoy value for untrusted sites")
}

func (f *itemFlags) item(cmd *cobra.Command) (types.PersonalInfoItem, error) {
	ctx := cmd.Context()
	var err error
	if f.keyname == "" {
		if f.keyname, err = promptString(ctx, "Key name", "Unique, e.g. work_email", ""); err != nil {
			return types.PersonalInfoItem{}, err
		}
	}
	if f.value == "" {
		if f.secret {
			f.value, err = promptPassword(ctx, "Value for "+f.keyname, "Hidden while typing")
		} else {
			f.value, err = promptString(ctx, "Value for "+f.keyname, "", "")
		}
		if err != nil {
			return types.PersonalInfoItem{}, err
		}
	}
	return types.PersonalInfoItem{
		Keyname:     f.keyname,
		Description: f.description,
		Value:       types.PlainValue(f.value),
		IsSecret:    f.secret,
		FakeValue:   f.fake,
	}, nil
}

func vaultAddCmd(root *rootFlags) *cobra.Command {
	f := &itemFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			item, err := f.item(cmd)
			if err != nil {
				return err
			}
			if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
				return err
			}
			if err := a.vault.AddItem(ctx, item); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Added " + item.Keyname))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func vaultUpdateCmd(root *rootFlags) *cobra.Command {
	f := &itemFlags{}
	cmd := &cobra.Command{
		Use:   "update <key>",
		Short: "Replace an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
				return err
			}
			items, err := a.vault.Items(ctx)
			if err != nil {
				return err
			}
			old, ok := types.FindItem(items, args[0])
			if !ok {
				return fmt.Errorf("%w: %s", vault.ErrItemNotFound, args[0])
			}

			fl := cmd.Flags()
			if !fl.Changed("key") {
				f.keyname = old.Keyname
			}
			if !fl.Changed("desc") {
				f.description = old.Description
			}
			if !fl.Changed("value") {
				f.value = old.Value.String()
			}
			if !fl.Changed("secret") {
				f.secret = old.IsSecret
			}
			if !fl.Changed("fake") {
				f.fake = old.FakeValue
			}

			item, err := f.item(cmd)
			if err != nil {
				return err
			}
			if err := a.vault.UpdateItem(ctx, args[0], item); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Updated " + item.Keyname))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func vaultDeleteCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
				return err
			}
			if err := a.vault.DeleteItem(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Deleted " + args[0]))
			return nil
		},
	}
}

func vaultExportCmd(root *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the vault as JSON (secrets stay encrypted in Safe Mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.vault.Export(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Println(successStyle.Render("Exported to " + output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func vaultImportCmd(root *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace vault items with an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read import: %w", err)
			}

			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if !force {
				ok, err := promptConfirm(ctx, "Importing replaces every vault item. Continue?", false)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			p := &prompter{}
			err = a.vault.Import(ctx, data, os.Getenv(passwordEnv))
			if errors.Is(err, vault.ErrNeedsPassword) || errors.Is(err, vault.ErrLocked) {
				password, ok, perr := p.Password(ctx, "Password for this export")
				if perr != nil {
					return perr
				}
				if !ok {
					return err
				}
				err = a.vault.Import(ctx, data, password)
			}
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Imported " + args[0]))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "do not ask before replacing")
	return cmd
}

func vaultEncryptCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Turn on Safe Mode: encrypt secret items with a master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			password, err := promptPassword(ctx, "New master password", "Needed to fill or edit secrets")
			if err != nil {
				return err
			}
			again, err := promptPassword(ctx, "Repeat master password", "")
			if err != nil {
				return err
			}
			if password != again {
				return fmt.Errorf("passwords do not match")
			}
			if err := a.vault.SetupEncryption(ctx, password); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Safe Mode is on"))
			return nil
		},
	}
}

func vaultDecryptCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt",
		Short: "Turn off Safe Mode and store every item in plaintext",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
				return err
			}
			if err := a.vault.DisableEncryption(ctx); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Safe Mode is off"))
			return nil
		},
	}
}

func vaultUnlockCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Check the master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.unlockIfNeeded(cmd.Context(), &prompter{}); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Password accepted"))
			return nil
		},
	}
}
