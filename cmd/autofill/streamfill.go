package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/autofill"
	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/page"
	"github.com/entrhq/autofill/pkg/streamfill"
)

type streamTarget interface {
	autofill.Page
	streamfill.Target
}

func streamFillCmd(root *rootFlags) *cobra.Command {
	var (
		file, url, output, instruction string
		index                          int
	)

	cmd := &cobra.Command{
		Use:   "stream-fill",
		Short: "Write a model reply into one field as it streams",
		Example: `  autofill stream-fill --file apply.html --field 3 --prompt "two sentence cover letter opening"
  autofill stream-fill --url https://jobs.example.com/apply --field 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (url == "") {
				return fmt.Errorf("exactly one of --url and --file is required")
			}
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
			filler, err := streamfill.FromSettings(settings, streamfill.WithLogger(a.logger.Component("stream")))
			if err != nil {
				return err
			}

			var (
				target streamTarget
				static *page.Static
			)
			if file != "" {
				if static, err = page.Open("localhost", file); err != nil {
					return err
				}
				target = static
			} else {
				live, closeBrowser, err := openBrowserPage(a, url, false)
				if err != nil {
					return err
				}
				defer closeBrowser()
				target = live
			}

			field, err := pickField(ctx, target, index)
			if err != nil {
				return err
			}
			if strings.TrimSpace(instruction) == "" {
				if instruction, err = promptString(ctx, "What should be written?", field.Context, ""); err != nil {
					return err
				}
			}

			res, err := filler.Fill(ctx, target, field, instruction)
			fmt.Println(boxStyle.Render(res.Text))
			if err != nil {
				return err
			}

			keep, err := promptConfirm(ctx, "Keep this text?", true)
			if err != nil {
				return err
			}
			if !keep {
				if _, err := filler.Undo(target, field); err != nil {
					return err
				}
				fmt.Println(mutedStyle.Render("Restored the previous value."))
			}

			if static != nil && output != "" {
				return writeOutput(static, output)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&file, "file", "", "saved HTML page")
	f.StringVar(&url, "url", "", "page to open in the browser")
	f.StringVar(&output, "output", "", "write the result HTML here (with --file)")
	f.StringVar(&instruction, "prompt", "", "what to write")
	f.IntVar(&index, "field", 0, "field index as listed by a fill run")
	return cmd
}

func pickField(ctx context.Context, target streamTarget, index int) (*detector.Field, error) {
	doc, err := target.Document(ctx)
	if err != nil {
		return nil, err
	}
	fields := detector.Collect(doc, detector.Options{})
	if index < 0 || index >= len(fields) {
		return nil, fmt.Errorf("field %d not found (page has %d fields)", index, len(fields))
	}
	return fields[index], nil
}
