package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/autofill/pkg/autofill"
	"github.com/entrhq/autofill/pkg/browser"
	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/match"
	"github.com/entrhq/autofill/pkg/page"
	"github.com/entrhq/autofill/pkg/policy"
	"github.com/entrhq/autofill/pkg/strategy"
)

type fillOptions struct {
	profile     string
	strategy    string
	pacing      string
	site        string
	url         string
	file        string
	output      string
	headless    bool
	yes         bool
	unlockFirst bool
	checkboxes  bool
}

func fillCmd(root *rootFlags) *cobra.Command {
	opts := &fillOptions{}

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the forms on a page",
		Long: `Fill the forms on a live page (--url) or a saved HTML file (--file).

Secret items are only disclosed on whitelisted sites and after confirmation.
Press Ctrl+C to abort; fields filled so far are kept.`,
		Example: `  autofill fill --url https://shop.example.com/checkout --strategy cluster
  autofill fill --file form.html --site shop.example.com --output filled.html
  autofill fill --profile checkout.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyProfile(cmd); err != nil {
				return err
			}
			return runFill(cmd.Context(), root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.profile, "profile", "", "YAML run profile")
	f.StringVar(&opts.strategy, "strategy", "", "batch, one-by-one or cluster (default from config)")
	f.StringVar(&opts.pacing, "pacing", "", "normal or fast (default from config)")
	f.StringVar(&opts.site, "site", "", "site host used for whitelist checks with --file")
	f.StringVar(&opts.url, "url", "", "page to open in the browser")
	f.StringVar(&opts.file, "file", "", "saved HTML page to fill")
	f.StringVar(&opts.output, "output", "", "write the filled HTML here (with --file)")
	f.BoolVar(&opts.headless, "headless", false, "run the browser without a window")
	f.BoolVar(&opts.yes, "yes", false, "confirm every secret disclosure")
	f.BoolVar(&opts.unlockFirst, "unlock-first", true, "ask for the vault password before matching")
	f.BoolVar(&opts.checkboxes, "checkboxes", false, "include checkboxes")
	return cmd
}

// applyProfile fills unset flags from the profile file.
func (o *fillOptions) applyProfile(cmd *cobra.Command) error {
	if o.profile == "" {
		if (o.url == "") == (o.file == "") {
			return fmt.Errorf("exactly one of --url and --file is required")
		}
		return nil
	}
	p, err := config.LoadProfile(o.profile)
	if err != nil {
		return err
	}
	set := func(name string, dst *string, v string) {
		if !cmd.Flags().Changed(name) && v != "" {
			*dst = v
		}
	}
	set("site", &o.site, p.Site)
	set("url", &o.url, p.URL)
	set("file", &o.file, p.File)
	set("strategy", &o.strategy, p.Strategy)
	set("pacing", &o.pacing, p.Pacing)
	if p.Headless != nil && !cmd.Flags().Changed("headless") {
		o.headless = *p.Headless
	}
	return nil
}

func runFill(ctx context.Context, root *rootFlags, opts *fillOptions) error {
	a, err := openApp(root)
	if err != nil {
		return err
	}
	defer a.Close()

	mode, err := strategy.ParseMode(firstNonEmpty(opts.strategy, a.settings.Strategy))
	if err != nil {
		return err
	}
	pacing := strategy.PacingFor(firstNonEmpty(opts.pacing, a.settings.Pacing))

	coord, err := a.coordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	wl, err := a.whitelist(ctx)
	if err != nil {
		return err
	}
	p := &prompter{assumeYes: opts.yes}
	pol := policy.New(wl, a.vault, p, policy.WithLogger(a.logger.Component("policy")))

	execOpts := []strategy.Option{
		strategy.WithPacing(pacing),
		strategy.WithProgress(spinnerProgress{}),
		strategy.WithLogger(a.logger.Component("strategy")),
	}

	var (
		target  autofill.Page
		static  *page.Static
		cleanup = func() {}
	)
	switch {
	case opts.file != "":
		static, err = page.Open(firstNonEmpty(opts.site, "localhost"), opts.file)
		if err != nil {
			return err
		}
		target = static
	default:
		live, closeBrowser, err := openBrowserPage(a, opts.url, opts.headless)
		if err != nil {
			return err
		}
		cleanup = closeBrowser
		target = live
		execOpts = append(execOpts, strategy.WithAffordance(live))
	}
	defer cleanup()

	exec := strategy.New(coord, pol, execOpts...)
	session := autofill.NewSession(a.vault, exec, p, autofill.Options{
		Mode:        mode,
		UnlockFirst: opts.unlockFirst,
		Detector:    detector.Options{IncludeCheckboxes: opts.checkboxes},
	}, a.logger.Component("session"))

	var res autofill.Result
	ctl := autofill.NewController(func(ctx context.Context) error {
		var err error
		res, err = session.Run(ctx, target)
		return err
	})
	ctl.Toggle(ctx)
	if err := ctl.Wait(); err != nil {
		return err
	}

	fmt.Println(renderReport(target.Site(), res.Fields, res.Report))

	if static != nil && opts.output != "" {
		if err := writeOutput(static, opts.output); err != nil {
			return err
		}
		fmt.Println(mutedStyle.Render("Wrote " + opts.output))
	}
	if opts.url != "" && !opts.headless && ctx.Err() == nil {
		_, _ = promptConfirm(ctx, "Close the browser?", true)
	}
	return nil
}

func (a *app) coordinator() (*match.Coordinator, error) {
	settings, err := a.llmSettings()
	if err != nil {
		return nil, err
	}
	provider, err := match.NewProvider(settings, a.logger.Component("provider"))
	if err != nil {
		return nil, err
	}
	a.logger.Infof("Matching with %s provider", provider.Name())
	return match.New(provider,
		match.WithLogger(a.logger.Component("match")),
		match.WithBudget(a.settings.BudgetTokens),
	), nil
}

func openBrowserPage(a *app, url string, headless bool) (*browser.Page, func(), error) {
	m := browser.NewManager(browser.WithInstall(true), browser.WithLogger(a.logger.Component("browser")))
	if err := m.Start(); err != nil {
		return nil, nil, err
	}
	s, err := m.Open("fill", browser.Options{Headless: headless})
	if err != nil {
		_ = m.Shutdown()
		return nil, nil, err
	}
	if err := s.Navigate(url); err != nil {
		_ = m.Shutdown()
		return nil, nil, err
	}
	return s.PageOf(), func() {
		if err := m.Shutdown(); err != nil {
			a.logger.Warnf("Browser shutdown: %v", err)
		}
	}, nil
}

func writeOutput(p *page.Static, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()
	return p.Render(f)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
