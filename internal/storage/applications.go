package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// EnsureUser returns the id for the given email, creating the row if it
// does not exist yet.
func (s *SQLiteStorage) EnsureUser(ctx context.Context, email string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, fmt.Errorf("email cannot be empty")
	}

	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up user: %w", err)
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO users (email) VALUES (?)", email)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new user id: %w", err)
	}
	return id, nil
}

// UpsertApplication writes one application row, keyed by the case-folded
// company and position. The stage reconciliation rules live in the
// in-memory store; this mirrors whatever the store decided.
func (s *SQLiteStorage) UpsertApplication(ctx context.Context, userID int64, company, position string, stage model.Stage) error {
	if userID <= 0 {
		return fmt.Errorf("userID must be positive")
	}
	if company == "" || position == "" {
		return fmt.Errorf("company and position cannot be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET stage = ?, date_updated = CURRENT_TIMESTAMP
		WHERE user_id = ?
		  AND lower(trim(company)) = lower(trim(?))
		  AND lower(trim(position)) = lower(trim(?))
		  AND stage != ?`,
		string(stage), userID, company, position, string(stage))
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing updated: either the row is absent or the stage is unchanged.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (user_id, company, position, stage)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		userID, strings.TrimSpace(company), strings.TrimSpace(position), string(stage))
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// ListApplications returns all applications for a user, oldest first.
func (s *SQLiteStorage) ListApplications(ctx context.Context, userID int64) ([]model.Application, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("userID must be positive")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company, position, stage, date_added, date_updated
		FROM applications
		WHERE user_id = ?
		ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var apps []model.Application
	for rows.Next() {
		var app model.Application
		var stage string
		if err := rows.Scan(&app.ID, &app.Company, &app.Position, &stage, &app.DateAdded, &app.DateUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		app.Stage = model.Stage(stage)
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// DeleteApplication removes one application row.
func (s *SQLiteStorage) DeleteApplication(ctx context.Context, userID int64, company, position string) error {
	if userID <= 0 {
		return fmt.Errorf("userID must be positive")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM applications
		WHERE user_id = ?
		  AND lower(trim(company)) = lower(trim(?))
		  AND lower(trim(position)) = lower(trim(?))`,
		userID, company, position)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}
