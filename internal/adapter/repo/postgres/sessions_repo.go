package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// SessionRepo stores interview session blobs keyed by (user_id, interview_id).
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

var _ domain.SessionStore = (*SessionRepo)(nil)

// Get loads the blob for a session, or domain.ErrNotFound.
func (r *SessionRepo) Get(ctx domain.Context, userID, interviewID string) ([]byte, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Get")
	defer span.End()
	span.SetAttributes(attribute.String("interview.id", interviewID))

	q := `SELECT state FROM interview_sessions WHERE user_id=$1 AND interview_id=$2`
	var blob []byte
	if err := r.Pool.QueryRow(ctx, q, userID, interviewID).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=session.get: %w", err)
	}
	return blob, nil
}

// Upsert writes the whole blob, replacing any earlier version.
func (r *SessionRepo) Upsert(ctx domain.Context, userID, interviewID string, blob []byte) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("interview.id", interviewID), attribute.Int("blob.bytes", len(blob)))

	q := `INSERT INTO interview_sessions (user_id, interview_id, state, updated_at)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (user_id, interview_id)
	DO UPDATE SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, userID, interviewID, blob, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=session.upsert: %w", err)
	}
	return nil
}

// Delete removes the blob. Deleting a missing session is not an error.
func (r *SessionRepo) Delete(ctx domain.Context, userID, interviewID string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Delete")
	defer span.End()

	q := `DELETE FROM interview_sessions WHERE user_id=$1 AND interview_id=$2`
	if _, err := r.Pool.Exec(ctx, q, userID, interviewID); err != nil {
		return fmt.Errorf("op=session.delete: %w", err)
	}
	return nil
}
