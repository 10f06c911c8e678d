package settings

import (
	"database/sql"
	"fmt"
	"time"
)

// ResourceRecord tracks an imported resource's source file
type ResourceRecord struct {
	ProjectID   string
	URL         string
	Path        string
	Usage       string
	Destination string
	Fingerprint string
	Size        int64
	ModTime     time.Time
	ImportedAt  time.Time
}

// PutRecord inserts or replaces a resource record
func (s *Store) PutRecord(r *ResourceRecord) error {
	if r.ImportedAt.IsZero() {
		r.ImportedAt = time.Now()
	}
	var modTime any
	if !r.ModTime.IsZero() {
		modTime = r.ModTime
	}
	_, err := s.db.Exec(`
		INSERT INTO resource_records (project_id, url, path, usage, destination, fingerprint, size, mod_time, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, url) DO UPDATE SET
			path = excluded.path, usage = excluded.usage, destination = excluded.destination,
			fingerprint = excluded.fingerprint, size = excluded.size, mod_time = excluded.mod_time`,
		r.ProjectID, r.URL, r.Path, r.Usage, r.Destination, r.Fingerprint, r.Size, modTime, r.ImportedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store resource record: %w", err)
	}
	return nil
}

// Records lists the resource records of a project
func (s *Store) Records(projectID string) ([]ResourceRecord, error) {
	rows, err := s.db.Query(`
		SELECT project_id, url, path, usage, destination, fingerprint, size, mod_time, imported_at
		FROM resource_records WHERE project_id = ? ORDER BY imported_at, url`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query resource records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ResourceRecord
	for rows.Next() {
		var r ResourceRecord
		var modTime sql.NullTime
		if err := rows.Scan(&r.ProjectID, &r.URL, &r.Path, &r.Usage, &r.Destination,
			&r.Fingerprint, &r.Size, &modTime, &r.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource record: %w", err)
		}
		if modTime.Valid {
			r.ModTime = modTime.Time
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRecord removes a resource record
func (s *Store) DeleteRecord(projectID, url string) error {
	_, err := s.db.Exec(`DELETE FROM resource_records WHERE project_id = ? AND url = ?`, projectID, url)
	if err != nil {
		return fmt.Errorf("failed to delete resource record: %w", err)
	}
	return nil
}
