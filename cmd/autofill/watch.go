package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/autofill"
	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/policy"
	"github.com/entrhq/autofill/pkg/types"
)

func watchCmd(root *rootFlags) *cobra.Command {
	var (
		url   string
		apply bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Suggest vault items as you focus fields in the browser",
		Long: `Open a page and match each field in the background when it gains focus.
Suggestions are printed; with --apply they are filled after disclosure checks.
Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("--url is required")
			}
			return runWatch(cmd.Context(), root, url, apply)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to open")
	cmd.Flags().BoolVar(&apply, "apply", false, "fill suggestions")
	return cmd
}

func runWatch(ctx context.Context, root *rootFlags, url string, apply bool) error {
	a, err := openApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	p := &prompter{}
	if err := a.unlockIfNeeded(ctx, p); err != nil {
		return err
	}
	items, err := a.vault.Items(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return autofill.ErrNoItems
	}

	coord, err := a.coordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	wl, err := a.whitelist(ctx)
	if err != nil {
		return err
	}
	pol := policy.New(wl, a.vault, p, policy.WithLogger(a.logger.Component("policy")))

	live, closeBrowser, err := openBrowserPage(a, url, false)
	if err != nil {
		return err
	}
	defer closeBrowser()

	doc, err := live.Document(ctx)
	if err != nil {
		return err
	}
	fields := detector.Collect(doc, detector.Options{})
	fmt.Println(mutedStyle.Render(fmt.Sprintf("Watching %d fields on %s", len(fields), live.Site())))

	focused, err := live.WatchFocus(ctx, fields)
	if err != nil {
		return err
	}
	events := make(chan autofill.FocusEvent)
	go func() {
		defer close(events)
		for f := range focused {
			select {
			case events <- autofill.FocusEvent{Field: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	sm := autofill.NewSilentMatcher(coord, items, autofill.WithSilentLogger(a.logger.Component("silent")))
	for s := range sm.Run(ctx, events) {
		fmt.Printf("%s #%d %s\n", infoStyle.Render("suggest"), s.Field.Index, keyStyle.Render(s.Key))
		if !apply {
			continue
		}
		item, ok := types.FindItem(items, s.Key)
		if !ok {
			continue
		}
		d, err := pol.Reveal(ctx, item, live.Site())
		if err != nil {
			a.logger.Warnf("Reveal %s: %v", s.Key, err)
			continue
		}
		if d.Declined {
			continue
		}
		if err := live.Fill(s.Field, d.Value); err != nil {
			a.logger.Warnf("Fill field %d: %v", s.Field.Index, err)
		}
	}
	return nil
}
