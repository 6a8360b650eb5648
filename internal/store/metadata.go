package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/pavelanni/capagrader/internal/model"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetLibraryInfo stores all LibraryInfo fields as metadata rows.
func (s *Store) SetLibraryInfo(info model.LibraryInfo) error {
	pairs := []struct{ k, v string }{
		{"library_source", info.SourceFile},
		{"library_hash", info.FileHash},
		{"library_imported_at", info.ImportedAt},
		{"library_count", strconv.Itoa(info.Count)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetLibraryInfo reads all LibraryInfo fields from metadata.
func (s *Store) GetLibraryInfo() (model.LibraryInfo, error) {
	var info model.LibraryInfo
	var err error

	if info.SourceFile, err = s.GetMetadata("library_source"); err != nil {
		return info, err
	}
	if info.FileHash, err = s.GetMetadata("library_hash"); err != nil {
		return info, err
	}
	if info.ImportedAt, err = s.GetMetadata("library_imported_at"); err != nil {
		return info, err
	}
	n, err := s.GetMetadata("library_count")
	if err != nil {
		return info, err
	}
	if n != "" {
		info.Count, err = strconv.Atoi(n)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}

// GetImportedFileHash returns the hash recorded for path, or "" if the file
// was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, imported_at = excluded.imported_at`,
		path, hash, time.Now().UTC(),
	)
	return err
}
