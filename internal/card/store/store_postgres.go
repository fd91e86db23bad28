package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campuscard/internal/card/models"
	"campuscard/pkg/platform/sentinel"
)

const cardColumns = `subject_id, uid, verify_token, blob_ref, stale, is_active,
	is_revoked, revoked_reason, expires_at, created_at, updated_at`

// PostgresStore persists card rows in PostgreSQL. The unique constraint on
// subject_id is the backstop for the get-or-create race, and
// SELECT ... FOR UPDATE provides the per-subject generation lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed card store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Artifact, error) {
	var card models.Artifact
	var blobRef sql.NullString
	var reason sql.NullString
	err := row.Scan(
		&card.SubjectID, &card.UID, &card.VerifyToken, &blobRef, &card.Stale,
		&card.IsActive, &card.IsRevoked, &reason, &card.ExpiresAt,
		&card.CreatedAt, &card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if blobRef.Valid {
		card.BlobRef = &blobRef.String
	}
	if reason.Valid {
		card.RevokedReason = reason.String
	}
	return &card, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, candidate *models.Artifact) (*models.Artifact, bool, error) {
	// Insert-or-skip, then read the winner. ON CONFLICT DO NOTHING makes
	// concurrent first-time calls race harmlessly.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (subject_id, uid, verify_token, stale, is_active, is_revoked, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, false, true, false, $4, now(), now())
		 ON CONFLICT (subject_id) DO NOTHING`,
		candidate.SubjectID, candidate.UID, candidate.VerifyToken, candidate.ExpiresAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert card: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert card: %w", err)
	}

	card, err := s.Get(ctx, candidate.SubjectID)
	if err != nil {
		return nil, false, err
	}
	return card, inserted == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectID uuid.UUID) (*models.Artifact, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = $1`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query card: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) GetByUID(ctx context.Context, uid uuid.UUID) (*models.Artifact, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE uid = $1`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("card %s: %w", uid, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query card by uid: %w", err)
	}
	return card, nil
}

type postgresGeneration struct {
	tx        *sql.Tx
	subjectID uuid.UUID
	snapshot  *models.Artifact
	done      bool
}

func (g *postgresGeneration) Artifact() *models.Artifact { return g.snapshot }

func (g *postgresGeneration) Commit(ctx context.Context, ref string) error {
	if g.done {
		return fmt.Errorf("generation already finished")
	}
	g.done = true
	_, err := g.tx.ExecContext(ctx,
		`UPDATE cards SET blob_ref = $2, stale = false, updated_at = now() WHERE subject_id = $1`,
		g.subjectID, ref,
	)
	if err != nil {
		_ = g.tx.Rollback()
		return fmt.Errorf("commit blob ref: %w", err)
	}
	if err := g.tx.Commit(); err != nil {
		return fmt.Errorf("commit generation tx: %w", err)
	}
	return nil
}

func (g *postgresGeneration) Abandon() error {
	if g.done {
		return nil
	}
	g.done = true
	return g.tx.Rollback()
}

func (s *PostgresStore) BeginGeneration(ctx context.Context, subjectID uuid.UUID) (Generation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin generation tx: %w", err)
	}

	card, err := scanCard(tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = $1 FOR UPDATE`, subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("lock card row: %w", err)
	}
	return &postgresGeneration{tx: tx, subjectID: subjectID, snapshot: card}, nil
}

func (s *PostgresStore) exec(ctx context.Context, subjectID uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("card for subject %s: %w", subjectID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) MarkStale(ctx context.Context, subjectID uuid.UUID) error {
	return s.exec(ctx, subjectID,
		`UPDATE cards SET stale = true, updated_at = now() WHERE subject_id = $1`, subjectID)
}

func (s *PostgresStore) ClearRef(ctx context.Context, subjectID uuid.UUID) error {
	return s.exec(ctx, subjectID,
		`UPDATE cards SET blob_ref = NULL, stale = false, updated_at = now() WHERE subject_id = $1`, subjectID)
}

func (s *PostgresStore) SetRevoked(ctx context.Context, subjectID uuid.UUID, revoked bool, reason string) error {
	if revoked {
		return s.exec(ctx, subjectID,
			`UPDATE cards SET is_revoked = true, revoked_reason = $2, updated_at = now() WHERE subject_id = $1`,
			subjectID, reason)
	}
	return s.exec(ctx, subjectID,
		`UPDATE cards SET is_revoked = false, revoked_reason = NULL, updated_at = now() WHERE subject_id = $1`,
		subjectID)
}

func (s *PostgresStore) RotateToken(ctx context.Context, subjectID uuid.UUID, token string) error {
	return s.exec(ctx, subjectID,
		`UPDATE cards SET verify_token = $2, stale = true, updated_at = now() WHERE subject_id = $1`,
		subjectID, token)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return out, nil
}
