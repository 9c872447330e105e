package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/autofill/pkg/strategy"
	"github.com/entrhq/autofill/pkg/types"
)

var (
	salmonPink  = lipgloss.Color("#FFB3BA")
	mintGreen   = lipgloss.Color("#A8E6CF")
	skyBlue     = lipgloss.Color("#A0C4FF")
	mutedGray   = lipgloss.Color("#6B7280")
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(brightWhite).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedGray)
	successStyle = lipgloss.NewStyle().Foreground(mintGreen)
	infoStyle    = lipgloss.NewStyle().Foreground(skyBlue)
	errorStyle   = lipgloss.NewStyle().Foreground(salmonPink)
	badgeStyle   = lipgloss.NewStyle().Foreground(salmonPink).Bold(true).Padding(0, 1)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedGray).Padding(0, 1)
)

const secretMask = "••••••••"

// renderItems lists vault items. Secret values are masked unless reveal is
// set; enveloped items show as locked.
func renderItems(items []types.PersonalInfoItem, reveal bool) string {
	if len(items) == 0 {
		return mutedStyle.Render("No items. Add one with 'autofill vault add' or 'autofill smart-add'.")
	}

	width := 0
	for _, it := range items {
		width = max(width, lipgloss.Width(it.Keyname))
	}

	var b strings.Builder
	for _, it := range items {
		value := it.Value.String()
		switch {
		case it.Value.IsEncrypted():
			value = mutedStyle.Render("(locked)")
		case it.IsSecret && !reveal:
			value = secretMask
		}

		line := keyStyle.Width(width+2).Render(it.Keyname) + value
		if it.IsSecret {
			line += badgeStyle.Render("SECRET")
		}
		b.WriteString(line + "\n")
		if it.Description != "" {
			b.WriteString(strings.Repeat(" ", width+2) + mutedStyle.Render(it.Description) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderReport(site string, fields int, r strategy.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Autofill"), mutedStyle.Render(site))
	fmt.Fprintf(&b, "strategy %s, %d fields, %d model calls\n", r.Mode, fields, r.Calls)
	for _, f := range r.Fields {
		b.WriteString(fmt.Sprintf("  #%-3d %s %s\n", f.Index, outcomeLabel(f.Outcome), f.Key))
	}
	parts := []string{
		successStyle.Render(fmt.Sprintf("%d filled", r.Count(strategy.OutcomeFilled))),
		infoStyle.Render(fmt.Sprintf("%d decoy", r.Count(strategy.OutcomeDecoy))),
		mutedStyle.Render(fmt.Sprintf("%d unmatched", r.Count(strategy.OutcomeUnmatched))),
	}
	if n := r.Count(strategy.OutcomeFailed); n > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failed", n)))
	}
	if r.Aborted {
		parts = append(parts, errorStyle.Render("aborted"))
	}
	b.WriteString(strings.Join(parts, mutedStyle.Render(" · ")))
	return boxStyle.Render(b.String())
}

func outcomeLabel(o strategy.Outcome) string {
	label := fmt.Sprintf("%-9s", o)
	switch o {
	case strategy.OutcomeFilled:
		return successStyle.Render(label)
	case strategy.OutcomeDecoy:
		return infoStyle.Render(label)
	case strategy.OutcomeFailed, strategy.OutcomeDeclined:
		return errorStyle.Render(label)
	default:
		return mutedStyle.Render(label)
	}
}
