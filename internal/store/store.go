// Package store holds the in-memory application list. It is the single
// source of truth while the process runs; SQLite persistence trails it
// asynchronously and is never on a request or tick path.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/service"
)

// persistTimeout bounds each background write so a wedged database cannot
// pile up goroutines forever.
const persistTimeout = 5 * time.Second

// Store is a mutex-guarded application list keyed by (company, position).
type Store struct {
	mu     sync.Mutex
	apps   map[string]*model.Application
	nextID int64

	userID  int64
	backing service.Storage
	now     func() time.Time
}

// New creates an empty store. backing may be nil, in which case changes are
// not persisted.
func New(backing service.Storage) *Store {
	return &Store{
		apps:    make(map[string]*model.Application),
		nextID:  1,
		backing: backing,
		now:     time.Now,
	}
}

// SetUser binds subsequent persistence writes to a database user.
func (s *Store) SetUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Reset replaces the whole list, typically with rows loaded from the
// database after authentication.
func (s *Store) Reset(apps []model.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apps = make(map[string]*model.Application, len(apps))
	s.nextID = 1
	for i := range apps {
		app := apps[i]
		if app.ID >= s.nextID {
			s.nextID = app.ID + 1
		}
		s.apps[app.Key()] = &app
	}
}

// Merge reconciles a classified email into the list. A new key creates an
// application; an existing key advances only when the incoming stage
// outranks the current one (Rejected always wins). DateUpdated moves only
// when something actually changed.
func (s *Store) Merge(company, position string, stage model.Stage) (model.Application, bool, bool) {
	s.mu.Lock()

	key := model.ApplicationKey(company, position)
	now := s.now().UTC()

	if existing, ok := s.apps[key]; ok {
		if !model.ShouldAdvance(existing.Stage, stage) {
			app := *existing
			s.mu.Unlock()
			return app, false, false
		}
		existing.Stage = stage
		existing.DateUpdated = now
		app := *existing
		s.mu.Unlock()
		s.persistAsync(app)
		return app, false, true
	}

	app := model.Application{
		ID:          s.nextID,
		Company:     company,
		Position:    position,
		Stage:       stage,
		DateAdded:   now,
		DateUpdated: now,
	}
	s.nextID++
	s.apps[key] = &app
	copied := app
	s.mu.Unlock()

	s.persistAsync(copied)
	return copied, true, false
}

// Add inserts or overwrites an application at the caller's request. Unlike
// Merge, the stage is applied unconditionally; this backs the manual API.
func (s *Store) Add(company, position string, stage model.Stage) model.Application {
	s.mu.Lock()

	key := model.ApplicationKey(company, position)
	now := s.now().UTC()

	if existing, ok := s.apps[key]; ok {
		if existing.Stage != stage {
			existing.Stage = stage
			existing.DateUpdated = now
		}
		app := *existing
		s.mu.Unlock()
		s.persistAsync(app)
		return app
	}

	app := model.Application{
		ID:          s.nextID,
		Company:     company,
		Position:    position,
		Stage:       stage,
		DateAdded:   now,
		DateUpdated: now,
	}
	s.nextID++
	s.apps[key] = &app
	copied := app
	s.mu.Unlock()

	s.persistAsync(copied)
	return copied
}

// UpdateStage sets an application's stage unconditionally, bypassing the
// forward-only rule. This backs manual corrections through the API.
func (s *Store) UpdateStage(id int64, stage model.Stage) (model.Application, error) {
	s.mu.Lock()

	for _, app := range s.apps {
		if app.ID != id {
			continue
		}
		if app.Stage != stage {
			app.Stage = stage
			app.DateUpdated = s.now().UTC()
		}
		copied := *app
		s.mu.Unlock()
		s.persistAsync(copied)
		return copied, nil
	}

	s.mu.Unlock()
	return model.Application{}, common.ErrNotFound
}

// Delete removes an application by id. A later email for the same company
// and position will create a fresh entry.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()

	for key, app := range s.apps {
		if app.ID != id {
			continue
		}
		copied := *app
		delete(s.apps, key)
		s.mu.Unlock()
		s.deleteAsync(copied)
		return nil
	}

	s.mu.Unlock()
	return common.ErrNotFound
}

// Get returns the application with the given id.
func (s *Store) Get(id int64) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, app := range s.apps {
		if app.ID == id {
			return *app, nil
		}
	}
	return model.Application{}, common.ErrNotFound
}

// List returns all applications in unspecified order.
func (s *Store) List() []model.Application {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Application, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, *app)
	}
	return out
}

// Grouped returns the list keyed by canonical stage. Every stage key is
// present even when empty, so consumers always see a complete shape.
func (s *Store) Grouped() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(model.Snapshot, 4)
	for _, stage := range model.Stages() {
		snapshot[stage] = []model.Application{}
	}
	for _, app := range s.apps {
		stage := app.Stage
		if !stage.Valid() {
			stage = model.StageApplied
		}
		snapshot[stage] = append(snapshot[stage], *app)
	}
	return snapshot
}

// Count returns the number of tracked applications.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps)
}

// persistAsync mirrors one application to the database off the hot path.
// Failures are logged and dropped; the in-memory list stays authoritative.
func (s *Store) persistAsync(app model.Application) {
	s.mu.Lock()
	backing, userID := s.backing, s.userID
	s.mu.Unlock()
	if backing == nil || userID == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := backing.UpsertApplication(ctx, userID, app.Company, app.Position, app.Stage); err != nil {
			slog.Warn("Failed to persist application",
				"company", app.Company,
				"position", app.Position,
				"error", err)
		}
	}()
}

func (s *Store) deleteAsync(app model.Application) {
	s.mu.Lock()
	backing, userID := s.backing, s.userID
	s.mu.Unlock()
	if backing == nil || userID == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := backing.DeleteApplication(ctx, userID, app.Company, app.Position); err != nil {
			slog.Warn("Failed to delete persisted application",
				"company", app.Company,
				"position", app.Position,
				"error", err)
		}
	}()
}
