// Package strategy runs a fill over collected fields in one of three modes.
//
//	batch       one match call over every field, then fill in reply order
//	one-by-one  one match call per field, in document order
//	cluster     one match call per page section, with the section's text
//	            prepended to each field context
//
// Every accepted match is passed through a Revealer before it is written, so
// secret items are gated the same way in every mode. Cancellation is checked
// only at checkpoints between units of work; fills already made stay.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/policy"
	"github.com/entrhq/autofill/pkg/types"
)

// Mode selects how fields are grouped into match calls.
type Mode string

const (
	ModeBatch    Mode = "batch"
	ModeOneByOne Mode = "one-by-one"
	ModeCluster  Mode = "cluster"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "batch":
		return ModeBatch, nil
	case "one-by-one", "onebyone", "one_by_one", "single":
		return ModeOneByOne, nil
	case "cluster", "section":
		return ModeCluster, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want batch, one-by-one or cluster)", s)
	}
}

// ErrAborted reports a run stopped by cancellation. It is not a failure.
var ErrAborted = errors.New("autofill aborted")

// Matcher maps field requests to vault keys.
type Matcher interface {
	Match(ctx context.Context, batch []types.FieldRequest, candidates []types.PersonalInfoItem) []types.MatchResult
}

// Revealer decides the value an item discloses on a site.
type Revealer interface {
	Reveal(ctx context.Context, item types.PersonalInfoItem, site string) (policy.Disclosure, error)
}

// Page is the document being filled.
type Page interface {
	Site() string
	Fill(field *detector.Field, value string) error
}

// Affordance marks a field while it is being considered.
type Affordance interface {
	Highlight(field *detector.Field) (unmark func())
}

// Progress shows that a long operation is running.
type Progress interface {
	Begin(label string) (end func())
}

// Outcome is what happened to one field.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFilled    Outcome = "filled"
	OutcomeDecoy     Outcome = "decoy"
	OutcomeDeclined  Outcome = "declined"
	OutcomeFailed    Outcome = "failed"
)

// FieldReport is the outcome for one field.
type FieldReport struct {
	Index   int
	Key     string
	Outcome Outcome
}

// Report summarises a run.
type Report struct {
	Mode    Mode
	Fields  []FieldReport
	Calls   int
	Aborted bool
}

// Count returns how many fields ended with o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, f := range r.Fields {
		if f.Outcome == o {
			n++
		}
	}
	return n
}

// Executor runs strategies. It holds no per-run state and may be reused.
type Executor struct {
	matcher    Matcher
	revealer   Revealer
	affordance Affordance
	progress   Progress
	pacing     Pacing
	logger     *logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithAffordance sets the field highlighter.
func WithAffordance(a Affordance) Option {
	return func(e *Executor) {
		e.affordance = a
	}
}

// WithProgress sets the progress indicator used by batch runs.
func WithProgress(p Progress) Option {
	return func(e *Executor) {
		e.progress = p
	}
}

// WithPacing sets the delays between steps.
func WithPacing(p Pacing) Option {
	return func(e *Executor) {
		e.pacing = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// New returns an executor.
func New(matcher Matcher, revealer Revealer, opts ...Option) *Executor {
	e := &Executor{
		matcher:  matcher,
		revealer: revealer,
		pacing:   DefaultPacing(),
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run fills fields on page from items. A cancelled ctx ends the run at the
// next checkpoint with an error wrapping both ErrAborted and ctx.Err().
// Errors from revealing a secret, such as a declined or wrong vault
// password, also end the run.
func (e *Executor) Run(ctx context.Context, mode Mode, page Page, fields []*detector.Field, items []types.PersonalInfoItem) (Report, error) {
	r := &run{
		Executor: e,
		page:     page,
		items:    items,
		report:   Report{Mode: mode},
		byIndex:  make(map[int]int, len(fields)),
	}
	for i, f := range fields {
		r.byIndex[f.Index] = i
		r.report.Fields = append(r.report.Fields, FieldReport{Index: f.Index, Outcome: OutcomeSkipped})
	}

	e.logger.Infof("Starting %s run over %d fields with %d items", mode, len(fields), len(items))

	var err error
	switch mode {
	case ModeBatch:
		err = r.batch(ctx, fields)
	case ModeOneByOne:
		err = r.oneByOne(ctx, fields)
	case ModeCluster:
		err = r.cluster(ctx, fields)
	default:
		return r.report, fmt.Errorf("unknown strategy %q", mode)
	}

	if errors.Is(err, ErrAborted) {
		r.report.Aborted = true
		e.logger.Infof("Run aborted after %d fills", r.report.Count(OutcomeFilled)+r.report.Count(OutcomeDecoy))
		return r.report, err
	}
	if err != nil {
		e.logger.Errorf("Run failed: %v", err)
		return r.report, err
	}

	e.logger.Infof("Run finished: %d filled, %d decoys, %d declined, %d unmatched, %d calls",
		r.report.Count(OutcomeFilled), r.report.Count(OutcomeDecoy), r.report.Count(OutcomeDeclined),
		r.report.Count(OutcomeUnmatched), r.report.Calls)
	return r.report, nil
}

// run is the state of one Run call.
type run struct {
	*Executor
	page    Page
	items   []types.PersonalInfoItem
	report  Report
	byIndex map[int]int
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

func (r *run) match(ctx context.Context, batch []types.FieldRequest) []types.MatchResult {
	r.report.Calls++
	return r.matcher.Match(ctx, batch, r.items)
}

func (r *run) highlight(f *detector.Field) func() {
	if r.affordance == nil {
		return func() {}
	}
	if unmark := r.affordance.Highlight(f); unmark != nil {
		return unmark
	}
	return func() {}
}

func (r *run) set(index int, key string, o Outcome) {
	if i, ok := r.byIndex[index]; ok {
		r.report.Fields[i].Key = key
		r.report.Fields[i].Outcome = o
	}
}

// settle marks every field of batch that got no usable result as unmatched.
func (r *run) settle(fields []*detector.Field) {
	for _, f := range fields {
		if fr := &r.report.Fields[r.byIndex[f.Index]]; fr.Outcome == OutcomeSkipped {
			fr.Outcome = OutcomeUnmatched
		}
	}
}

// apply reveals and writes the item named key into f.
func (r *run) apply(ctx context.Context, f *detector.Field, key string) error {
	item, ok := types.FindItem(r.items, key)
	if !ok {
		r.set(f.Index, key, OutcomeUnmatched)
		return nil
	}

	d, err := r.revealer.Reveal(ctx, item, r.page.Site())
	if err != nil {
		return fmt.Errorf("failed to reveal %s: %w", key, err)
	}
	if d.Declined {
		r.set(f.Index, key, OutcomeDeclined)
		return nil
	}

	if err := r.page.Fill(f, d.Value); err != nil {
		r.logger.Warnf("Failed to fill field %d with %s: %v", f.Index, key, err)
		r.set(f.Index, key, OutcomeFailed)
		return nil
	}

	if d.Decoy {
		r.set(f.Index, key, OutcomeDecoy)
	} else {
		r.set(f.Index, key, OutcomeFilled)
	}
	r.logger.Debugf("Filled field %d with %s", f.Index, key)
	return nil
}

func requestsFor(fields []*detector.Field, sectionContext string) []types.FieldRequest {
	out := make([]types.FieldRequest, len(fields))
	for i, f := range fields {
		ctx := f.Context
		if sectionContext != "" {
			ctx = fmt.Sprintf("[Section Context: %s] %s", sectionContext, f.Context)
		}
		out[i] = types.FieldRequest{ID: f.Index, Context: ctx}
	}
	return out
}
