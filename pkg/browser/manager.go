// Package browser drives a real Chromium page through Playwright so fills
// run against live sites.
//
// A Manager owns the Playwright driver and the sessions started from it.
// Each Session exposes its page as a Page, which snapshots the live DOM for
// field collection and writes values back through CSS selectors derived from
// the snapshot.
package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/autofill/pkg/logging"
)

const (
	// DefaultViewportWidth is the default browser viewport width.
	DefaultViewportWidth = 1280
	// DefaultViewportHeight is the default browser viewport height.
	DefaultViewportHeight = 800
	// DefaultTimeout is the default operation timeout in milliseconds.
	DefaultTimeout = 30000
	// DefaultMaxSessions bounds concurrently open sessions.
	DefaultMaxSessions = 3
)

// Options configures a new session.
type Options struct {
	Headless bool
	Width    int
	Height   int
	// Timeout is the default operation timeout in milliseconds.
	Timeout float64
}

// Session is one browser with a single page.
type Session struct {
	Name      string
	Browser   playwright.Browser
	Context   playwright.BrowserContext
	Page      playwright.Page
	Headless  bool
	CreatedAt time.Time
}

// Manager owns the Playwright driver and its sessions.
type Manager struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	sessions    map[string]*Session
	maxSessions int
	install     bool
	logger      *logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInstall downloads the driver and browsers on first use.
func WithInstall(install bool) ManagerOption {
	return func(m *Manager) {
		m.install = install
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager returns a manager. Start launches the driver.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the Playwright driver. It is a no-op once started.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pw != nil {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if m.install {
		m.logger.Infof("Installing Playwright driver")
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	m.pw = pw
	return nil
}

// Open starts a named session.
func (m *Manager) Open(name string, opts Options) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pw == nil {
		return nil, fmt.Errorf("browser manager not started")
	}
	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}

	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = DefaultViewportWidth, DefaultViewportHeight
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	browser, err := m.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	s := &Session{
		Name:      name,
		Browser:   browser,
		Context:   bctx,
		Page:      page,
		Headless:  opts.Headless,
		CreatedAt: time.Now(),
	}
	m.sessions[name] = s
	m.logger.Debugf("Opened browser session %s (headless=%t)", name, opts.Headless)
	return s, nil
}

// Close closes a named session.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("session %q not found", name)
	}
	delete(m.sessions, name)
	return s.close()
}

// Shutdown closes every session and stops the driver.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.sessions {
		if err := s.close(); err != nil {
			m.logger.Warnf("Failed to close session %s: %v", name, err)
		}
		delete(m.sessions, name)
	}

	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.pw = nil
	}
	return nil
}

func (s *Session) close() error {
	// Page and context close errors are ignored; closing the browser
	// releases them anyway.
	_ = s.Page.Close()
	_ = s.Context.Close()
	if err := s.Browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Navigate loads url and waits for the DOM to be ready.
func (s *Session) Navigate(url string) error {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}
