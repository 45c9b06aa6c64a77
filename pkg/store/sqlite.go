package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"streamengine/pkg/engineerr"
	"streamengine/pkg/model"
)

// SQLiteStore is a Store backed by a single sqlite file via the pure-Go
// modernc.org/sqlite driver, so the CLI binary needs no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	source_url TEXT NOT NULL,
	playlist_url TEXT NOT NULL,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	threads INTEGER NOT NULL,
	output_dir TEXT NOT NULL,
	segments TEXT NOT NULL,
	total_segments INTEGER NOT NULL,
	downloaded_segments INTEGER NOT NULL,
	file_size INTEGER NOT NULL,
	downloaded_bytes INTEGER NOT NULL,
	progress REAL NOT NULL,
	speed REAL NOT NULL,
	eta INTEGER NOT NULL,
	output_file TEXT NOT NULL,
	duration REAL NOT NULL,
	error_message TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	max_concurrent_downloads INTEGER NOT NULL,
	default_threads INTEGER NOT NULL,
	default_output_path TEXT NOT NULL,
	auto_start INTEGER NOT NULL
);
`

// OpenSQLiteStore opens (creating if absent) a sqlite-backed Store at path,
// applying schema migration and pragmas the way the teacher's adjacent
// database.Init does (WAL mode for concurrent readers under the supervisor).
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, engineerr.New(engineerr.KindStorage, "", fmt.Sprintf("creating directory for %s", path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, engineerr.New(engineerr.KindStorage, "", fmt.Sprintf("opening %s", path), err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, engineerr.New(engineerr.KindStorage, "", "enabling WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, engineerr.New(engineerr.KindStorage, "", "enabling foreign keys", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, engineerr.New(engineerr.KindStorage, "", "applying schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_url, playlist_url, filename, status, threads, output_dir, segments,
			total_segments, downloaded_segments, file_size, downloaded_bytes, progress, speed, eta,
			output_file, duration, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SourceURL, job.PlaylistURL, job.Filename, string(job.Status), job.Threads, job.OutputDir,
		encodeSegments(job.Segments), job.TotalSegments, job.DownloadedSegments, job.FileSize, job.DownloadedBytes,
		job.Progress, job.Speed, job.ETA, job.OutputFile, job.Duration, job.ErrorMessage, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return engineerr.New(engineerr.KindStorage, job.ID, "creating job", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, source_url, playlist_url, filename, status, threads, output_dir,
		segments, total_segments, downloaded_segments, file_size, downloaded_bytes, progress, speed, eta,
		output_file, duration, error_message, created_at, updated_at FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, engineerr.New(engineerr.KindStorage, id, "getting job", err)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_url, playlist_url, filename, status, threads, output_dir,
		segments, total_segments, downloaded_segments, file_size, downloaded_bytes, progress, speed, eta,
		output_file, duration, error_message, created_at, updated_at FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, engineerr.New(engineerr.KindStorage, "", "listing jobs", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, engineerr.New(engineerr.KindStorage, "", "scanning job row", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateJob loads, mutates, and rewrites the row inside a single
// transaction so each call is an atomic read-modify-write. With the pool
// capped at one connection (see OpenSQLiteStore), all UpdateJob calls run
// one at a time, including calls for distinct jobs.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, mutate func(*model.Job)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engineerr.New(engineerr.KindStorage, id, "beginning update transaction", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, source_url, playlist_url, filename, status, threads, output_dir,
		segments, total_segments, downloaded_segments, file_size, downloaded_bytes, progress, speed, eta,
		output_file, duration, error_message, created_at, updated_at FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return engineerr.New(engineerr.KindStorage, id, "reading job for update", err)
	}

	mutate(job)
	job.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `UPDATE jobs SET source_url=?, playlist_url=?, filename=?, status=?, threads=?,
		output_dir=?, segments=?, total_segments=?, downloaded_segments=?, file_size=?, downloaded_bytes=?,
		progress=?, speed=?, eta=?, output_file=?, duration=?, error_message=?, updated_at=? WHERE id=?`,
		job.SourceURL, job.PlaylistURL, job.Filename, string(job.Status), job.Threads, job.OutputDir,
		encodeSegments(job.Segments), job.TotalSegments, job.DownloadedSegments, job.FileSize, job.DownloadedBytes,
		job.Progress, job.Speed, job.ETA, job.OutputFile, job.Duration, job.ErrorMessage, job.UpdatedAt, id,
	)
	if err != nil {
		return engineerr.New(engineerr.KindStorage, id, "writing updated job", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return engineerr.New(engineerr.KindStorage, id, "deleting job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return engineerr.New(engineerr.KindStorage, id, "checking delete result", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT max_concurrent_downloads, default_threads, default_output_path,
		auto_start FROM settings WHERE id = 1`)
	var set model.Settings
	var autoStart int
	err := row.Scan(&set.MaxConcurrentDownloads, &set.DefaultThreads, &set.DefaultOutputPath, &autoStart)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, engineerr.New(engineerr.KindStorage, "", "getting settings", err)
	}
	set.AutoStart = autoStart != 0
	return &set, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, set *model.Settings) error {
	autoStart := 0
	if set.AutoStart {
		autoStart = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO settings (id, max_concurrent_downloads, default_threads,
		default_output_path, auto_start) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET max_concurrent_downloads=excluded.max_concurrent_downloads,
		default_threads=excluded.default_threads, default_output_path=excluded.default_output_path,
		auto_start=excluded.auto_start`,
		set.MaxConcurrentDownloads, set.DefaultThreads, set.DefaultOutputPath, autoStart,
	)
	if err != nil {
		return engineerr.New(engineerr.KindStorage, "", "saving settings", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var status, segments string
	err := row.Scan(&job.ID, &job.SourceURL, &job.PlaylistURL, &job.Filename, &status, &job.Threads,
		&job.OutputDir, &segments, &job.TotalSegments, &job.DownloadedSegments, &job.FileSize,
		&job.DownloadedBytes, &job.Progress, &job.Speed, &job.ETA, &job.OutputFile, &job.Duration,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = model.Status(status)
	job.Segments = decodeSegments(segments)
	return &job, nil
}

// encodeSegments/decodeSegments store the ordered segment URL list as a
// newline-joined blob: segment URLs never contain raw newlines, and this
// avoids a second table for what is an immutable, write-once field.
func encodeSegments(segments []string) string {
	return strings.Join(segments, "\n")
}

func decodeSegments(blob string) []string {
	if blob == "" {
		return nil
	}
	return strings.Split(blob, "\n")
}
