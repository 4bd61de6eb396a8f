// Package service defines the interfaces between the application's components.
package service

import (
	"context"
	"time"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// MailboxService wraps provider authentication and message retrieval.
// Implementations own the processed-message set: ids are recorded as
// processed at fetch time, so a message is never re-fetched even if its
// classification later fails or is discarded.
type MailboxService interface {
	// AuthURL returns the provider's authorization URL for the OAuth flow.
	AuthURL() (string, error)

	// Authenticate exchanges an authorization code for credentials and
	// returns the mailbox identity (the account's email address). It also
	// clears the processed-message set.
	Authenticate(ctx context.Context, code string) (string, error)

	IsAuthenticated() bool

	// Identity returns the authenticated account's address, or "" when not
	// authenticated or unavailable.
	Identity(ctx context.Context) string

	// ListCandidates returns up to max ids of recent messages matching the
	// adapter's keyword filter, excluding ids already processed.
	ListCandidates(ctx context.Context, max int64) ([]string, error)

	// FetchAndDecode retrieves and decodes one message. The id is marked
	// processed before decoding begins.
	FetchAndDecode(ctx context.Context, id string) (model.EmailMessage, error)

	// SeedProcessed marks the most recent max messages as already processed
	// so starting the monitor does not replay old mail. Returns the number
	// of ids seeded.
	SeedProcessed(ctx context.Context, max int64) int

	ProcessedCount() int
}

// Classifier turns one email into a structured classification. A transport
// failure is returned as an error; malformed model output is not an error
// and yields the zero Classification instead.
type Classifier interface {
	Classify(ctx context.Context, subject, body, sender string) (model.Classification, error)

	// Available reports whether a classifier is configured at all.
	Available() bool
}

// Storage is the persistence collaborator behind the in-memory store.
type Storage interface {
	Migrate(ctx context.Context) error
	EnsureUser(ctx context.Context, email string) (int64, error)
	UpsertApplication(ctx context.Context, userID int64, company, position string, stage model.Stage) error
	ListApplications(ctx context.Context, userID int64) ([]model.Application, error)
	DeleteApplication(ctx context.Context, userID int64, company, position string) error
	Close() error
}

// Publisher is the notification sink consumed by the presentation layer.
// The monitor loop and the API handlers depend only on this interface.
type Publisher interface {
	// PublishSnapshot broadcasts the full grouped application list.
	PublishSnapshot(snapshot model.Snapshot)

	// PublishNewApplication broadcasts a single newly detected application.
	PublishNewApplication(event model.NewApplicationEvent)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
