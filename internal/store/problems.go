package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
)

// ErrProblemNotFound is returned when no problem has the requested name.
var ErrProblemNotFound = errors.New("problem not found")

// UpsertProblem stores a converted problem tree under name, replacing any
// previous tree with that name.
func (s *Store) UpsertProblem(name, source string, tree json.RawMessage) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO problems (name, source, tree, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET source = excluded.source, tree = excluded.tree, imported_at = excluded.imported_at
		 RETURNING id`,
		name, source, string(tree), time.Now().UTC(),
	).Scan(&id)
	return id, err
}

// GetProblem returns the problem stored under name.
func (s *Store) GetProblem(name string) (model.ProblemRecord, error) {
	var (
		p    model.ProblemRecord
		tree string
	)
	err := s.db.QueryRow(
		`SELECT id, name, source, tree, imported_at FROM problems WHERE name = ?`, name,
	).Scan(&p.ID, &p.Name, &p.Source, &tree, &p.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrProblemNotFound
	}
	p.Tree = json.RawMessage(tree)
	return p, err
}

// ListProblems returns every stored problem ordered by name, without trees.
func (s *Store) ListProblems() ([]model.ProblemRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, source, imported_at FROM problems ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var problems []model.ProblemRecord
	for rows.Next() {
		var p model.ProblemRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.Source, &p.ImportedAt); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// ProblemCount returns the number of stored problems.
func (s *Store) ProblemCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM problems`).Scan(&count)
	return count, err
}
