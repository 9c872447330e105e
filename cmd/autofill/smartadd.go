package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/smartadd"
	"github.com/entrhq/autofill/pkg/types"
)

func smartAddCmd(root *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "smart-add [request]",
		Short: "Draft vault items from a description with the remote model",
		Example: `  autofill smart-add "my work contact details: Ada Lovelace, ada@example.com, +44 20 7946 0000"
  autofill smart-add "a realistic US shopping persona"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			settings, err := a.llmSettings()
			if err != nil {
				return err
			}
			gen, err := smartadd.FromSettings(settings, smartadd.WithLogger(a.logger.Component("smartadd")))
			if err != nil {
				return err
			}

			request := strings.Join(args, " ")
			if strings.TrimSpace(request) == "" {
				if request, err = promptText(ctx, "Describe the data", "E.g. create a persona for testing checkout forms"); err != nil {
					return err
				}
			}

			end := spinnerProgress{}.Begin("Generating items")
			drafts, err := gen.Generate(ctx, request)
			end()
			if err != nil {
				return err
			}

			items := make([]types.PersonalInfoItem, len(drafts))
			labels := make([]string, len(drafts))
			for i, d := range drafts {
				items[i] = d.Item()
				labels[i] = fmt.Sprintf("%s = %s", d.Keyname, d.Value)
			}
			fmt.Println(boxStyle.Render(renderItems(items, true)))

			picked := make([]int, len(drafts))
			for i := range picked {
				picked[i] = i
			}
			if !yes {
				if picked, err = promptMultiSelect(ctx, "Items to save", labels); err != nil {
					return err
				}
			}
			if len(picked) == 0 {
				return nil
			}
			sort.Ints(picked)
			chosen := make([]smartadd.Draft, 0, len(picked))
			for _, i := range picked {
				chosen = append(chosen, drafts[i])
			}

			if err := a.unlockIfNeeded(ctx, &prompter{}); err != nil {
				return err
			}
			sum := smartadd.Apply(ctx, a.vault, chosen)
			for key, ferr := range sum.Failed {
				fmt.Println(errorStyle.Render(fmt.Sprintf("%s: %v", key, ferr)))
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("Saved %d items (%d new, %d updated)", sum.Applied(), sum.Added, sum.Updated)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "save every drafted item without asking")
	return cmd
}
