package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cardgate/internal/distribution/models"
	"cardgate/internal/platform/postgres"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
	txcontext "cardgate/pkg/platform/tx"
)

// Postgres keeps the ledger in the distributions table. The unique index on
// token backs token uniqueness.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const distributionColumns = `id, program_id, recipient_id, issuer_id, token, status, expires_at, created_at, last_accessed_at, used_at`

func (s *Postgres) Create(ctx context.Context, d *models.Distribution) error {
	query := `INSERT INTO distributions (` + distributionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(d.ID), uuid.UUID(d.ProgramID), uuid.UUID(d.RecipientID), uuid.UUID(d.IssuerID),
		d.Token, string(d.Status), d.ExpiresAt, d.CreatedAt, d.LastAccessedAt, d.UsedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.DistributionID) (*models.Distribution, error) {
	return s.findOne(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE id = $1`, uuid.UUID(id))
}

func (s *Postgres) FindByToken(ctx context.Context, token string) (*models.Distribution, error) {
	return s.findOne(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE token = $1`, token)
}

func (s *Postgres) findOne(ctx context.Context, query string, arg any) (*models.Distribution, error) {
	d, err := scanDistribution(txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find distribution: %w", err)
	}
	return d, nil
}

// TouchFetched records the latest fetch. Concurrent fetches race and the last
// write wins; status is never touched.
func (s *Postgres) TouchFetched(ctx context.Context, id domain.DistributionID, at time.Time) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE distributions SET last_accessed_at = $2 WHERE id = $1`, uuid.UUID(id), at)
	if err != nil {
		return fmt.Errorf("touch distribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch distribution rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Consume flips a pending, unexpired row to consumed in one statement. The
// row lock taken by UPDATE serializes racing consumers; losers re-evaluate the
// WHERE clause against the committed row and match nothing.
func (s *Postgres) Consume(ctx context.Context, token string, at time.Time) (*models.Distribution, error) {
	query := `UPDATE distributions SET status = 'consumed', used_at = $2
		WHERE token = $1 AND status <> 'consumed' AND expires_at >= $2
		RETURNING ` + distributionColumns
	d, err := scanDistribution(txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, token, at))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume distribution: %w", err)
	}

	// Nothing matched; read only to say why.
	current, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status == models.StatusConsumed:
		return nil, sentinel.ErrAlreadyUsed
	case current.IsExpired(at):
		return nil, sentinel.ErrExpired
	default:
		return nil, fmt.Errorf("consume distribution: row %s not updated", current.ID)
	}
}

func (s *Postgres) ListByIssuer(ctx context.Context, issuer domain.UserID) ([]*models.Distribution, error) {
	return s.list(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE issuer_id = $1 ORDER BY created_at DESC`, issuer)
}

func (s *Postgres) ListByRecipient(ctx context.Context, recipient domain.UserID) ([]*models.Distribution, error) {
	return s.list(ctx, `SELECT `+distributionColumns+` FROM distributions WHERE recipient_id = $1 ORDER BY created_at DESC`, recipient)
}

func (s *Postgres) list(ctx context.Context, query string, user domain.UserID) ([]*models.Distribution, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(user))
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []*models.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row scanner) (*models.Distribution, error) {
	var (
		d                              models.Distribution
		id, program, recipient, issuer uuid.UUID
		status                         string
		lastAccessed, used             sql.NullTime
	)
	if err := row.Scan(&id, &program, &recipient, &issuer, &d.Token, &status, &d.ExpiresAt, &d.CreatedAt, &lastAccessed, &used); err != nil {
		return nil, err
	}
	d.ID = domain.DistributionID(id)
	d.ProgramID = domain.ProgramID(program)
	d.RecipientID = domain.UserID(recipient)
	d.IssuerID = domain.UserID(issuer)
	d.Status = models.Status(status)
	if lastAccessed.Valid {
		t := lastAccessed.Time
		d.LastAccessedAt = &t
	}
	if used.Valid {
		t := used.Time
		d.UsedAt = &t
	}
	return &d, nil
}
