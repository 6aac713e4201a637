package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/coderoom/internal/domain"
)

// Badger persists rooms in an embedded badger database.
// Keys:
//
//	room:{id}                                   -> roomRecord
//	participant:{id}:{joinedAt 019d}:{pid}      -> domain.Participant
//
// The zero-padded join timestamp makes a prefix scan return join order.
type Badger struct {
	db *badger.DB
}

func OpenBadger(path string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return &Badger{db: db}, nil
}

func roomKey(id domain.RoomID) []byte { return []byte("room:" + string(id)) }

func participantPrefix(id domain.RoomID) []byte { return []byte("participant:" + string(id) + ":") }

func participantKey(id domain.RoomID, p domain.Participant) []byte {
	return []byte(fmt.Sprintf("participant:%s:%019d:%s", id, p.JoinedAt.UnixNano(), p.ID))
}

func (b *Badger) SaveRoom(_ context.Context, room domain.Room) error {
	rec, err := json.Marshal(toRecord(room))
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(roomKey(room.ID), rec); err != nil {
			return err
		}
		if err := deletePrefix(txn, participantPrefix(room.ID)); err != nil {
			return err
		}
		for _, p := range room.Participants {
			if err := setParticipant(txn, room.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) SaveParticipant(_ context.Context, roomID domain.RoomID, p domain.Participant) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(roomID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
			}
			return err
		}
		return setParticipant(txn, roomID, p)
	})
}

func (b *Badger) LoadRoom(_ context.Context, id domain.RoomID) (domain.Room, error) {
	var (
		rec          roomRecord
		participants []domain.Participant
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
			return err
		}

		prefix := participantPrefix(id)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p domain.Participant
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return err
			}
			participants = append(participants, p)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, err
	}
	return rec.toRoom(participants), nil
}

func (b *Badger) Close() error { return b.db.Close() }

func setParticipant(txn *badger.Txn, roomID domain.RoomID, p domain.Participant) error {
	v, err := json.Marshal(p.WithoutCursor())
	if err != nil {
		return err
	}
	return txn.Set(participantKey(roomID, p), v)
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
