// Package streamfill writes a free-form model reply into one field as it
// streams, and can restore the value the field had before.
package streamfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/autofill/pkg/config"
	"github.com/entrhq/autofill/pkg/detector"
	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/llm/openai"
	"github.com/entrhq/autofill/pkg/logging"
	"github.com/entrhq/autofill/pkg/types"
)

// DefaultInterval is the minimum time between visible updates.
const DefaultInterval = 50 * time.Millisecond

// ErrRemoteOnly is returned when streaming is requested without a remote
// provider configured.
var ErrRemoteOnly = errors.New("streaming fill requires the remote provider")

// Target is a page whose fields can be read and written.
type Target interface {
	Value(field *detector.Field) (string, error)
	Fill(field *detector.Field, value string) error
}

// Result describes a finished stream.
type Result struct {
	Text    string
	Updates int
}

// Filler streams completions into fields.
type Filler struct {
	provider llm.Provider
	interval time.Duration
	logger   *logging.Logger

	mu   sync.Mutex
	undo map[*detector.Field]string
}

// Option configures a Filler.
type Option func(*Filler)

// WithInterval sets the update throttle. Zero writes every chunk.
func WithInterval(d time.Duration) Option {
	return func(f *Filler) {
		f.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Filler) {
		f.logger = l
	}
}

// New returns a filler over provider.
func New(provider llm.Provider, opts ...Option) *Filler {
	f := &Filler{
		provider: provider,
		interval: DefaultInterval,
		logger:   logging.Nop(),
		undo:     make(map[*detector.Field]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FromSettings builds a filler from LLM settings. Only the remote provider
// can stream.
func FromSettings(settings config.LLMSettings, opts ...Option) (*Filler, error) {
	if settings.Provider != config.ProviderRemote {
		return nil, ErrRemoteOnly
	}
	client, err := openai.NewProvider(settings.APIKey,
		openai.WithBaseURL(settings.BaseURL),
		openai.WithModel(settings.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote provider: %w", err)
	}
	return New(client, opts...), nil
}

// SystemPrompt is the instruction sent with every streaming request.
func SystemPrompt(fieldContext string) string {
	return fmt.Sprintf("You are a helpful assistant. User is focusing on %q. Output ONLY the content to fill.", fieldContext)
}

// Fill replaces field's value with the reply to instruction. The previous
// value is kept for Undo. Whatever was streamed before a failure or
// cancellation stays in the field.
func (f *Filler) Fill(ctx context.Context, target Target, field *detector.Field, instruction string) (Result, error) {
	var res Result

	prev, err := target.Value(field)
	if err != nil {
		return res, fmt.Errorf("failed to read field: %w", err)
	}

	stream, err := f.provider.StreamCompletion(ctx, []*types.Message{
		types.NewSystemMessage(SystemPrompt(field.Context)),
		types.NewUserMessage(instruction),
	})
	if err != nil {
		return res, fmt.Errorf("failed to start stream: %w", err)
	}

	f.mu.Lock()
	f.undo[field] = prev
	f.mu.Unlock()

	if err := target.Fill(field, ""); err != nil {
		return res, fmt.Errorf("failed to clear field: %w", err)
	}

	var (
		buf      strings.Builder
		writeErr error
		throttle = rate.Sometimes{Interval: f.interval}
	)
	update := func() {
		if err := target.Fill(field, buf.String()); err != nil {
			writeErr = err
			return
		}
		res.Updates++
	}
	final := func() error {
		update()
		res.Text = buf.String()
		if writeErr != nil {
			return fmt.Errorf("failed to write field: %w", writeErr)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := final(); err != nil {
				return res, err
			}
			return res, ctx.Err()
		case chunk, ok := <-stream:
			if !ok || chunk.Finished {
				return res, final()
			}
			if chunk.IsError() {
				f.logger.Warnf("Stream for field %d failed: %v", field.Index, chunk.Error)
				if err := final(); err != nil {
					return res, err
				}
				return res, fmt.Errorf("stream failed: %w", chunk.Error)
			}
			if chunk.IsThinking() || chunk.Content == "" {
				continue
			}
			buf.WriteString(chunk.Content)
			if f.interval <= 0 {
				update()
			} else {
				throttle.Do(update)
			}
		}
	}
}

// Undo restores the value field had before its last Fill. It reports false
// when there is nothing to restore.
func (f *Filler) Undo(target Target, field *detector.Field) (bool, error) {
	f.mu.Lock()
	prev, ok := f.undo[field]
	delete(f.undo, field)
	f.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := target.Fill(field, prev); err != nil {
		return false, fmt.Errorf("failed to restore field: %w", err)
	}
	return true, nil
}
