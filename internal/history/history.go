// Package history keeps a local SQLite record of served transcriptions,
// keyed by a blake3 hash of the uploaded audio. Text results double as a
// cache for repeated uploads.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"lukechampine.com/blake3"
)

type Record struct {
	Hash       string
	Provider   string
	Format     string
	Text       string
	DurationMs int64
	CreatedAt  time.Time
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	_, err = db.Exec(`
	PRAGMA busy_timeout  = 10000;
	PRAGMA journal_mode  = WAL;
	PRAGMA synchronous   = NORMAL;
	PRAGMA foreign_keys  = ON;
	PRAGMA temp_store    = MEMORY;

	create table if not exists transcripts (
		hash        text not null,
		provider    text not null,
		format      text not null,
		text        text not null,
		duration_ms integer not null,
		created_at  text not null,
		primary key (hash, provider)
	);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LookupText returns a previously served transcription for the same audio
// content and provider, if one exists.
func (s *Store) LookupText(ctx context.Context, hash, provider string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`select text from transcripts where hash = ? and provider = ?`,
		hash, provider,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("history lookup: %w", err)
	}
	return text, true, nil
}

// Insert upserts the latest result for this audio content and provider.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`insert or replace into transcripts (hash, provider, format, text, duration_ms, created_at)
		 values (?, ?, ?, ?, ?, ?)`,
		rec.Hash, rec.Provider, rec.Format, rec.Text, rec.DurationMs, rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history insert: %w", err)
	}
	return nil
}

// HashBytes computes the blake3 content hash used as the history key.
func HashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
