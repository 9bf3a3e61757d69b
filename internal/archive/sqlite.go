// Package archive keeps a copy of client history in SQLite so it survives
// restarts.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pelusa-v/chatroom/internal/session"
)

const (
	contentText = "text"
	contentFile = "file"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("archive path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			conv_kind INTEGER NOT NULL,
			conv_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			content_kind TEXT NOT NULL,
			body TEXT,
			file_name TEXT,
			file_data BLOB,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_owner_seq ON history(owner, seq);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init archive schema: %w", err)
		}
	}
	return nil
}

// Append stores one entry of owner's history.
func (s *Store) Append(owner string, key session.ConversationKey, e session.Entry) error {
	var (
		kind, body, fileName string
		data                 []byte
	)
	switch c := e.Content.(type) {
	case session.Text:
		kind, body = contentText, string(c)
	case session.FileRef:
		kind, fileName, data = contentFile, c.Name, c.Data
	default:
		return fmt.Errorf("archive: unsupported content %T", e.Content)
	}
	_, err := s.db.Exec(`INSERT INTO history(owner, conv_kind, conv_id, sender, content_kind, body, file_name, file_data, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, int(key.Kind), key.ID, e.Sender, kind, body, fileName, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("archive append: %w", err)
	}
	return nil
}

// Load returns owner's history in append order.
func (s *Store) Load(owner string) ([]session.Record, error) {
	rows, err := s.db.Query(`SELECT conv_kind, conv_id, sender, content_kind, body, file_name, file_data
		FROM history WHERE owner = ? ORDER BY seq ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("archive load: %w", err)
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		var (
			convKind, convID int
			sender, kind     string
			body, fileName   sql.NullString
			data             []byte
		)
		if err := rows.Scan(&convKind, &convID, &sender, &kind, &body, &fileName, &data); err != nil {
			return nil, fmt.Errorf("archive load: %w", err)
		}
		key := session.ConversationKey{Kind: session.Kind(convKind), ID: convID}
		switch kind {
		case contentFile:
			out = append(out, session.Record{Key: key, Entry: session.FileEntry(sender, fileName.String, data)})
		default:
			out = append(out, session.Record{Key: key, Entry: session.TextEntry(sender, body.String)})
		}
	}
	return out, rows.Err()
}
