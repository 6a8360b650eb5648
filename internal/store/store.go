package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
	"github.com/pavelanni/capagrader/internal/xqueue"

	_ "modernc.org/sqlite"
)

// pollInterval is how often Pop rechecks an empty queue.
const pollInterval = 200 * time.Millisecond

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS external_grader_details (
		uuid TEXT NOT NULL UNIQUE,
		course_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		item_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		answer TEXT NOT NULL,
		queue_name TEXT NOT NULL,
		grader_file_name TEXT NOT NULL DEFAULT '',
		grader_payload TEXT NOT NULL DEFAULT '',
		points_possible REAL NOT NULL DEFAULT 0,
		files TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'submitted',
		score_json TEXT,
		claimed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (course_id, item_type, item_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS idx_egd_queue ON external_grader_details (queue_name, status, created_at);

	CREATE TABLE IF NOT EXISTS problems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT '',
		tree TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const detailColumns = `uuid, course_id, item_type, item_id, student_id, answer, queue_name,
	grader_file_name, grader_payload, points_possible, files, status, score_json, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDetail(row scanner) (model.ExternalGraderDetail, error) {
	var (
		d       model.ExternalGraderDetail
		payload string
		files   string
		score   sql.NullString
	)
	err := row.Scan(&d.UUID, &d.StudentItem.CourseID, &d.StudentItem.ItemType, &d.StudentItem.ItemID,
		&d.StudentItem.StudentID, &d.Answer, &d.QueueName, &d.GraderFileName, &payload,
		&d.PointsPossible, &files, &d.Status, &score, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if payload != "" {
		d.GraderPayload = json.RawMessage(payload)
	}
	if err := json.Unmarshal([]byte(files), &d.Files); err != nil {
		return d, fmt.Errorf("decode files: %w", err)
	}
	if score.Valid {
		d.Score = &model.ScoreMessage{}
		if err := json.Unmarshal([]byte(score.String), d.Score); err != nil {
			return d, fmt.Errorf("decode score: %w", err)
		}
	}
	return d, nil
}

// CreateExternalGraderDetail inserts d unless a row with the same identity
// exists, in which case the stored row is returned with created=false.
func (s *Store) CreateExternalGraderDetail(ctx context.Context, d model.ExternalGraderDetail) (model.ExternalGraderDetail, bool, error) {
	files, err := json.Marshal(d.Files)
	if err != nil {
		return model.ExternalGraderDetail{}, false, fmt.Errorf("encode files: %w", err)
	}
	if d.Files == nil {
		files = []byte("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO external_grader_details
		 (uuid, course_id, item_type, item_id, student_id, answer, queue_name, grader_file_name,
		  grader_payload, points_possible, files, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (course_id, item_type, item_id, student_id) DO NOTHING`,
		d.UUID, d.StudentItem.CourseID, d.StudentItem.ItemType, d.StudentItem.ItemID, d.StudentItem.StudentID,
		d.Answer, d.QueueName, d.GraderFileName, string(d.GraderPayload), d.PointsPossible, string(files),
		d.Status, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return model.ExternalGraderDetail{}, false, fmt.Errorf("insert submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ExternalGraderDetail{}, false, err
	}
	stored, err := s.GetExternalGraderDetail(ctx, d.StudentItem)
	if err != nil {
		return model.ExternalGraderDetail{}, false, err
	}
	return stored, n == 1, nil
}

// GetExternalGraderDetail returns the submission with the given identity.
func (s *Store) GetExternalGraderDetail(ctx context.Context, item model.StudentItem) (model.ExternalGraderDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+detailColumns+` FROM external_grader_details
		 WHERE course_id = ? AND item_type = ? AND item_id = ? AND student_id = ?`,
		item.CourseID, item.ItemType, item.ItemID, item.StudentID,
	)
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, xqueue.ErrUnknownSubmission
	}
	return d, err
}

// SetScore moves a submitted row to status.
func (s *Store) SetScore(ctx context.Context, item model.StudentItem, status model.SubmissionStatus, score *model.ScoreMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current model.SubmissionStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM external_grader_details
		 WHERE course_id = ? AND item_type = ? AND item_id = ? AND student_id = ?`,
		item.CourseID, item.ItemType, item.ItemID, item.StudentID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return xqueue.ErrUnknownSubmission
	}
	if err != nil {
		return err
	}
	if !current.CanTransition(status) {
		return xqueue.ErrInvalidTransition
	}

	var scoreJSON sql.NullString
	if score != nil {
		data, err := json.Marshal(score)
		if err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
		scoreJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE external_grader_details SET status = ?, score_json = ?, updated_at = ?
		 WHERE course_id = ? AND item_type = ? AND item_id = ? AND student_id = ?`,
		status, scoreJSON, time.Now().UTC(),
		item.CourseID, item.ItemType, item.ItemID, item.StudentID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListExternalGraderDetails returns submissions on queueName, or on every
// queue when it is empty, oldest first.
func (s *Store) ListExternalGraderDetails(ctx context.Context, queueName string) ([]model.ExternalGraderDetail, error) {
	query := `SELECT ` + detailColumns + ` FROM external_grader_details WHERE 1=1`
	var args []any
	if queueName != "" {
		query += ` AND queue_name = ?`
		args = append(args, queueName)
	}
	query += ` ORDER BY created_at, uuid`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var details []model.ExternalGraderDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// Pop claims the oldest unclaimed submitted row on queueName, polling until
// timeout. It returns nil when nothing arrives in time.
func (s *Store) Pop(ctx context.Context, queueName string, timeout time.Duration) (*model.ExternalGraderDetail, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		d, err := s.claim(ctx, queueName)
		if err != nil || d != nil {
			return d, err
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Store) claim(ctx context.Context, queueName string) (*model.ExternalGraderDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE external_grader_details SET claimed_at = ?
		 WHERE uuid = (
			SELECT uuid FROM external_grader_details
			WHERE queue_name = ? AND status = ? AND claimed_at IS NULL
			ORDER BY created_at, uuid LIMIT 1
		 )
		 RETURNING `+detailColumns,
		time.Now().UTC(), queueName, model.StatusSubmitted,
	)
	d, err := scanDetail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim submission: %w", err)
	}
	return &d, nil
}

// SubmissionCount returns the number of stored submissions.
func (s *Store) SubmissionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM external_grader_details`).Scan(&count)
	return count, err
}
