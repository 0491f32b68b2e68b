package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"testgen/internal/testcase"
)

type PostgresStore struct {
	db *sql.DB
}

// openDB is replaced in tests.
var openDB = sql.Open

func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := openDB("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Gateway and worker start together; only one of them creates the schema.
	const lockID = 571920384

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requirements (
			id UUID PRIMARY KEY,
			source TEXT,
			text TEXT NOT NULL,
			testing_type TEXT NOT NULL,
			num_cases INT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS test_cases (
			requirement_id UUID REFERENCES requirements(id) ON DELETE CASCADE,
			ord INT NOT NULL,
			test_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			preconditions TEXT[] NOT NULL DEFAULT '{}',
			steps TEXT[] NOT NULL,
			expected_result TEXT NOT NULL,
			test_type TEXT NOT NULL,
			flags TEXT[] NOT NULL DEFAULT '{}',
			PRIMARY KEY (requirement_id, ord),
			UNIQUE (requirement_id, test_id)
		);`,
		`CREATE TABLE IF NOT EXISTS rejections (
			requirement_id UUID REFERENCES requirements(id) ON DELETE CASCADE,
			idx INT NOT NULL,
			reason TEXT NOT NULL,
			field TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (requirement_id, idx)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateRequirement(ctx context.Context, req NewRequirement) (Requirement, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requirements(id, source, text, testing_type, num_cases, status)
		VALUES($1,$2,$3,$4,$5,$6)`,
		id, req.Source, req.Text, req.TestingType, req.NumCases, StatusPending)
	if err != nil {
		return Requirement{}, err
	}
	return Requirement{
		ID:          id,
		Source:      req.Source,
		Text:        req.Text,
		TestingType: req.TestingType,
		NumCases:    req.NumCases,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}, nil
}

func (s *PostgresStore) GetRequirement(ctx context.Context, id uuid.UUID) (Requirement, error) {
	var r Requirement
	row := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(source, ''), text, testing_type, num_cases, status, created_at
		FROM requirements WHERE id=$1`, id)
	if err := row.Scan(&r.ID, &r.Source, &r.Text, &r.TestingType, &r.NumCases, &r.Status, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Requirement{}, ErrRequirementNotFound
		}
		return Requirement{}, fmt.Errorf("failed to get requirement %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRequirementStatus(ctx context.Context, id uuid.UUID, status RequirementStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE requirements SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRequirementNotFound
	}
	return nil
}

// SaveResult replaces the stored cases and rejections of a requirement in one transaction.
func (s *PostgresStore) SaveResult(ctx context.Context, reqID uuid.UUID, res testcase.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_cases WHERE requirement_id=$1`, reqID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rejections WHERE requirement_id=$1`, reqID); err != nil {
		return err
	}
	for i, tc := range res.Cases {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO test_cases(requirement_id, ord, test_id, title, description, preconditions, steps, expected_result, test_type, flags)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			reqID, i, tc.TestID, tc.Title, tc.Description,
			pqStringArray(tc.Preconditions), pqStringArray(tc.Steps),
			tc.ExpectedResult, tc.TestType, pqStringArray(flagsToStrings(tc.Flags)))
		if err != nil {
			return fmt.Errorf("insert test case %s: %w", tc.TestID, err)
		}
	}
	for _, rej := range res.Rejections {
		_, err := tx.ExecContext(ctx, `INSERT INTO rejections(requirement_id, idx, reason, field) VALUES($1,$2,$3,$4)`,
			reqID, rej.Index, string(rej.Reason), rej.Field)
		if err != nil {
			return fmt.Errorf("insert rejection %d: %w", rej.Index, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListTestCases(ctx context.Context, reqID uuid.UUID) ([]testcase.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_id, title, description, preconditions, steps, expected_result, test_type, flags
		FROM test_cases WHERE requirement_id=$1 ORDER BY ord`, reqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []testcase.TestCase{}
	for rows.Next() {
		var (
			tc    testcase.TestCase
			flags []string
		)
		if err := rows.Scan(&tc.TestID, &tc.Title, &tc.Description, pq.Array(&tc.Preconditions),
			pq.Array(&tc.Steps), &tc.ExpectedResult, &tc.TestType, pq.Array(&flags)); err != nil {
			return nil, err
		}
		tc.Flags = stringsToFlags(flags)
		out = append(out, tc)
	}
	return out, rows.Err()
}

func pqStringArray(items []string) any {
	if len(items) == 0 {
		return []string{}
	}
	return items
}

func flagsToStrings(flags []testcase.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}

func stringsToFlags(items []string) []testcase.Flag {
	if len(items) == 0 {
		return nil
	}
	out := make([]testcase.Flag, len(items))
	for i, s := range items {
		out[i] = testcase.Flag(s)
	}
	return out
}
