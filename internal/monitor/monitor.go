// Package monitor drives the mailbox polling loop: list candidate messages,
// classify them, and merge the results into the application store.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
	"github.com/wheresmyjobat/wheresmyjobat/internal/store"
)

const stopGracePeriod = 2 * time.Second

// Config tunes the monitor loop.
type Config struct {
	// BaseInterval is the slowest the loop will poll when the mailbox has
	// been quiet.
	BaseInterval time.Duration

	// BatchSize caps how many messages one tick will process.
	BatchSize int64

	// ConfidenceThreshold is the minimum classification confidence (0-100)
	// for a result to reach the store.
	ConfidenceThreshold int

	// SeedCount is how many recent messages Start marks as already
	// processed so old mail is not replayed.
	SeedCount int64
}

func (c *Config) applyDefaults() {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 30
	}
	if c.SeedCount <= 0 {
		c.SeedCount = 50
	}
}

// Status is the monitor's public state. It is always well-formed, including
// before authentication.
type Status struct {
	LastActivity        *time.Time `json:"last_activity"`
	EmailIdentity       string     `json:"email_identity"`
	IsRunning           bool       `json:"is_running"`
	EmailConnected      bool       `json:"email_connected"`
	ClassifierAvailable bool       `json:"classifier_available"`
	ProcessedEmails     int        `json:"processed_emails"`
	CheckInterval       float64    `json:"check_interval"`
	DynamicInterval     float64    `json:"dynamic_interval"`
	TotalApplications   int        `json:"total_applications"`
}

// ScanResult summarizes one pass over the mailbox.
type ScanResult struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Monitor owns the polling goroutine. Start and Stop may be called from any
// goroutine; both are idempotent.
type Monitor struct {
	cfg        Config
	mailbox    service.MailboxService
	classifier service.Classifier
	store      *store.Store
	publisher  service.Publisher

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	lastActivity time.Time
	dynamic      time.Duration
	failures     int
	processed    int

	now func() time.Time
}

// New creates a stopped monitor.
func New(cfg Config, mbox service.MailboxService, classifier service.Classifier, st *store.Store, pub service.Publisher) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:        cfg,
		mailbox:    mbox,
		classifier: classifier,
		store:      st,
		publisher:  pub,
		dynamic:    cfg.BaseInterval,
		now:        time.Now,
	}
}

// Start launches the polling loop. It is a no-op when already running.
// Recent mail is seeded into the processed set so only messages arriving
// after this call are considered.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	seeded := m.mailbox.SeedProcessed(loopCtx, m.cfg.SeedCount)
	slog.Info("Monitor started",
		"base_interval", m.cfg.BaseInterval,
		"seeded_messages", seeded)

	go m.loop(loopCtx, done)
}

// Stop halts the loop, interrupting any in-flight batch, and waits briefly
// for the goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		slog.Warn("Monitor loop did not exit within grace period")
	}
	slog.Info("Monitor stopped")
}

// IsRunning reports whether the polling loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ManualScan runs one synchronous pass over the mailbox, independent of the
// polling loop and without touching its cadence state.
func (m *Monitor) ManualScan(ctx context.Context) (ScanResult, error) {
	return m.scan(ctx)
}

// Status reports the monitor's current state.
func (m *Monitor) Status(ctx context.Context) Status {
	m.mu.Lock()
	running := m.running
	dynamic := m.dynamic
	lastActivity := m.lastActivity
	processed := m.processed
	m.mu.Unlock()

	st := Status{
		IsRunning:           running,
		EmailConnected:      m.mailbox.IsAuthenticated(),
		EmailIdentity:       m.mailbox.Identity(ctx),
		ClassifierAvailable: m.classifier.Available(),
		ProcessedEmails:     processed,
		CheckInterval:       m.cfg.BaseInterval.Seconds(),
		DynamicInterval:     dynamic.Seconds(),
		TotalApplications:   m.store.Count(),
	}
	if !lastActivity.IsZero() {
		t := lastActivity
		st.LastActivity = &t
	}
	return st
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result, err := m.scan(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := m.nextDelay(result, err)
		timer.Reset(delay)
	}
}

// nextDelay updates the cadence state after one tick and returns the delay
// before the next one. Errors back the loop off exponentially; activity
// resets the backoff and polls again almost immediately.
func (m *Monitor) nextDelay(result ScanResult, err error) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	active := result.Created+result.Updated > 0

	// A tick can both merge an application and hit a transient failure;
	// the activity still counts so the post-backoff cadence stays fast.
	if active {
		m.lastActivity = now
	}

	if err != nil {
		m.failures++
		m.dynamic = backoffDelay(m.failures)
		slog.Warn("Mailbox scan failed",
			"consecutive_failures", m.failures,
			"retry_in", m.dynamic,
			"error", err)
		return m.dynamic
	}

	m.failures = 0

	sinceActivity := recentWindow
	if !m.lastActivity.IsZero() {
		sinceActivity = now.Sub(m.lastActivity)
	}
	m.dynamic = nextInterval(m.cfg.BaseInterval, sinceActivity, active)
	return m.dynamic
}

// scan performs one pass: list a batch of candidates, fetch and classify
// each, merge qualifying results, and notify subscribers of what changed.
// The context is rechecked between messages so Stop interrupts mid-batch.
func (m *Monitor) scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	ids, err := m.mailbox.ListCandidates(ctx, m.cfg.BatchSize)
	if err != nil {
		return result, err
	}

	var events []model.NewApplicationEvent
	var firstErr error

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		msg, err := m.mailbox.FetchAndDecode(ctx, id)
		if err != nil {
			slog.Warn("Failed to fetch message", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Scanned++

		cls, err := m.classifier.Classify(ctx, msg.Subject, msg.Body, msg.Sender)
		if err != nil {
			slog.Warn("Classification failed", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !cls.Qualifies(m.cfg.ConfidenceThreshold) {
			continue
		}

		stage := cls.Tag.Canonical()
		app, created, updated := m.store.Merge(cls.Company, cls.Title, stage)
		switch {
		case created:
			result.Created++
			events = append(events, model.NewApplicationEvent{
				Timestamp: app.DateAdded,
				Company:   app.Company,
				Position:  app.Position,
				Stage:     app.Stage,
			})
			slog.Info("New application detected",
				"company", app.Company,
				"position", app.Position,
				"stage", app.Stage)
		case updated:
			result.Updated++
			slog.Info("Application advanced",
				"company", app.Company,
				"position", app.Position,
				"stage", app.Stage)
		}
	}

	// The processed counter reflects emails this monitor actually examined,
	// not the dedup set, which Start pre-seeds with old mail.
	m.mu.Lock()
	m.processed += result.Scanned
	m.mu.Unlock()

	if m.publisher != nil {
		for _, ev := range events {
			m.publisher.PublishNewApplication(ev)
		}
		if result.Created+result.Updated > 0 {
			m.publisher.PublishSnapshot(m.store.Grouped())
		}
	}

	return result, firstErr
}
