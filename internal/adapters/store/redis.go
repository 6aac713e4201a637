package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/coderoom/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis keeps each room as a JSON string plus a hash of its participants.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis connects to redis and verifies connectivity
func NewRedis(ctx context.Context, addr string, db int, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

// roomKey is {prefix}:room:{id}.
func (r *Redis) roomKey(id domain.RoomID) string { return r.prefix + ":room:" + string(id) }

func (r *Redis) participantsKey(id domain.RoomID) string {
	return r.roomKey(id) + ":participants"
}

func (r *Redis) SaveRoom(ctx context.Context, room domain.Room) error {
	rec, err := json.Marshal(toRecord(room))
	if err != nil {
		return err
	}
	fields := make(map[string]any, len(room.Participants))
	for _, p := range room.Participants {
		v, err := json.Marshal(p.WithoutCursor())
		if err != nil {
			return err
		}
		fields[string(p.ID)] = v
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.roomKey(room.ID), rec, 0)
		pipe.Del(ctx, r.participantsKey(room.ID))
		if len(fields) > 0 {
			pipe.HSet(ctx, r.participantsKey(room.ID), fields)
		}
		return nil
	})
	return err
}

func (r *Redis) SaveParticipant(ctx context.Context, roomID domain.RoomID, p domain.Participant) error {
	n, err := r.rdb.Exists(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	v, err := json.Marshal(p.WithoutCursor())
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, r.participantsKey(roomID), string(p.ID), v).Err()
}

func (r *Redis) LoadRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	raw, err := r.rdb.Get(ctx, r.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Room{}, err
	}
	var rec roomRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Room{}, err
	}

	values, err := r.rdb.HGetAll(ctx, r.participantsKey(id)).Result()
	if err != nil {
		return domain.Room{}, err
	}
	participants := make([]domain.Participant, 0, len(values))
	for _, v := range values {
		var p domain.Participant
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return domain.Room{}, err
		}
		participants = append(participants, p)
	}
	return rec.toRoom(participants), nil
}

func (r *Redis) Close() error { return r.rdb.Close() }
