package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/coderoom/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLite persists rooms in two tables mirroring the room/participant records.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		host_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL,
		is_host BOOLEAN NOT NULL DEFAULT FALSE,
		joined_at INTEGER NOT NULL,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_participants_room_id ON participants(room_id, joined_at);
	`
	_, err := db.Exec(schema)
	return err
}

const upsertParticipant = `
	INSERT INTO participants (id, room_id, name, color, is_host, joined_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color, is_host = excluded.is_host`

func (s *SQLite) SaveRoom(ctx context.Context, room domain.Room) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, code, language, host_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, language = excluded.language`,
		room.ID, room.Code, room.Language, room.HostID, room.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", room.ID, err)
	}

	ids := make([]any, 0, len(room.Participants)+1)
	ids = append(ids, room.ID)
	placeholders := ""
	for i, p := range room.Participants {
		if _, err := tx.ExecContext(ctx, upsertParticipant,
			p.ID, room.ID, p.Name, p.Color, p.IsHost, p.JoinedAt.UnixNano()); err != nil {
			return fmt.Errorf("upsert participant %s: %w", p.ID, err)
		}
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		ids = append(ids, p.ID)
	}
	del := "DELETE FROM participants WHERE room_id = ?"
	if placeholders != "" {
		del += " AND id NOT IN (" + placeholders + ")"
	}
	if _, err := tx.ExecContext(ctx, del, ids...); err != nil {
		return fmt.Errorf("prune participants of %s: %w", room.ID, err)
	}
	return tx.Commit()
}

func (s *SQLite) SaveParticipant(ctx context.Context, roomID domain.RoomID, p domain.Participant) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM rooms WHERE id = ?", roomID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertParticipant,
		p.ID, roomID, p.Name, p.Color, p.IsHost, p.JoinedAt.UnixNano())
	return err
}

func (s *SQLite) LoadRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var (
		rec       roomRecord
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, language, host_id, created_at FROM rooms WHERE id = ?", id).
		Scan(&rec.ID, &rec.Code, &rec.Language, &rec.HostID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, color, is_host, joined_at FROM participants WHERE room_id = ? ORDER BY joined_at", id)
	if err != nil {
		return domain.Room{}, err
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var (
			p        domain.Participant
			joinedAt int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Color, &p.IsHost, &joinedAt); err != nil {
			return domain.Room{}, err
		}
		p.JoinedAt = time.Unix(0, joinedAt).UTC()
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Room{}, err
	}
	return rec.toRoom(participants), nil
}

func (s *SQLite) Close() error { return s.db.Close() }
