package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cardgate/internal/platform/postgres"
	"cardgate/internal/program/models"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
	txcontext "cardgate/pkg/platform/tx"
)

// Postgres stores programs in the programs table. payload is a JSON column,
// not JSONB, so the bytes an issuer submitted come back unchanged.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const programColumns = `id, name, description, owner_id, payload, active, created_at`

func (s *Postgres) Create(ctx context.Context, p *models.Program) error {
	query := `INSERT INTO programs (` + programColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Name, p.Description, uuid.UUID(p.OwnerID), []byte(p.Payload), p.Active, p.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.ProgramID) (*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = $1`
	p, err := scanProgram(txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return p, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE owner_id = $1 ORDER BY created_at`
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var programs []*models.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate programs: %w", err)
	}
	return programs, nil
}

func (s *Postgres) SetActive(ctx context.Context, id domain.ProgramID, active bool) error {
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx,
		`UPDATE programs SET active = $2 WHERE id = $1`, uuid.UUID(id), active)
	if err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update program rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgram(row scanner) (*models.Program, error) {
	var (
		p       models.Program
		id      uuid.UUID
		owner   uuid.UUID
		payload []byte
	)
	if err := row.Scan(&id, &p.Name, &p.Description, &owner, &payload, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = domain.ProgramID(id)
	p.OwnerID = domain.UserID(owner)
	p.Payload = payload
	return &p, nil
}
