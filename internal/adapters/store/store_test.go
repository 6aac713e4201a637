package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]core.RoomStore {
	t.Helper()
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	out := map[string]core.RoomStore{
		"memory": NewMemory(),
		"badger": b,
		"sqlite": s,
	}
	local := []core.RoomStore{out["memory"], b, s}
	t.Cleanup(func() {
		for _, st := range local {
			_ = st.Close()
		}
	})
	if r := openTestRedis(t); r != nil {
		out["redis"] = r
	}
	return out
}

// openTestRedis connects to CODEROOM_TEST_REDIS_ADDR under a prefix unique to
// the test and removes its keys afterwards. It returns nil when the variable
// is unset.
func openTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("CODEROOM_TEST_REDIS_ADDR")
	if addr == "" {
		return nil
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("coderoom-test-%d", time.Now().UnixNano())
	r, err := NewRedis(ctx, addr, 0, prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, err := r.rdb.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			_ = r.rdb.Del(ctx, keys...).Err()
		}
		_ = r.Close()
	})
	return r
}

func sampleRoom(t *testing.T) (domain.Room, domain.Participant) {
	t.Helper()
	at := time.Now().UTC().Truncate(time.Millisecond)
	host, err := domain.NewHost("Alice", at)
	require.NoError(t, err)
	host.Cursor = &domain.CursorPosition{LineNumber: 4, Column: 2}
	room := domain.NewRoom("abcd1234", domain.LanguagePython, *host, at)
	return *room, *host
}

func TestStores_RoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			room, host := sampleRoom(t)

			req.NoError(st.SaveRoom(ctx, room))

			got, err := st.LoadRoom(ctx, room.ID)
			req.NoError(err)
			req.Equal(room.ID, got.ID)
			req.Equal(room.Code, got.Code)
			req.Equal(room.Language, got.Language)
			req.Equal(room.HostID, got.HostID)
			req.True(room.CreatedAt.Equal(got.CreatedAt))
			req.Len(got.Participants, 1)
			req.Equal(host.ID, got.Participants[0].ID)
			req.True(got.Participants[0].IsHost)
			req.Nil(got.Participants[0].Cursor, "cursor positions are never persisted")
		})
	}
}

func TestStores_LoadUnknownRoom(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.LoadRoom(context.Background(), "missing")
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestStores_SaveParticipantKeepsJoinOrder(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			room, host := sampleRoom(t)
			req.NoError(st.SaveRoom(ctx, room))

			var guests []domain.Participant
			for i, n := range []string{"Bob", "Carol", "Dave"} {
				g, err := domain.NewGuest(n, i, host.JoinedAt.Add(time.Duration(i+1)*time.Second))
				req.NoError(err)
				req.NoError(st.SaveParticipant(ctx, room.ID, *g))
				guests = append(guests, *g)
			}
			// saving twice must not duplicate
			req.NoError(st.SaveParticipant(ctx, room.ID, guests[0]))

			got, err := st.LoadRoom(ctx, room.ID)
			req.NoError(err)
			req.Len(got.Participants, 4)
			req.Equal(host.ID, got.Participants[0].ID)
			for i, g := range guests {
				req.Equal(g.ID, got.Participants[i+1].ID)
				req.Equal(g.Color, got.Participants[i+1].Color)
				req.False(got.Participants[i+1].IsHost)
			}
		})
	}
}

func TestStores_SaveParticipantUnknownRoom(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g, err := domain.NewGuest("Bob", 0, time.Now())
			require.NoError(t, err)
			err = st.SaveParticipant(context.Background(), "missing", *g)
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestStores_SaveRoomOverwritesState(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			room, host := sampleRoom(t)
			g, err := domain.NewGuest("Bob", 0, host.JoinedAt.Add(time.Second))
			req.NoError(err)
			room.AddParticipant(*g)
			req.NoError(st.SaveRoom(ctx, room))

			room.Code = "x=1"
			room.Language = domain.LanguageJavaScript
			req.NoError(room.RemoveParticipant(g.ID))
			req.NoError(st.SaveRoom(ctx, room))

			got, err := st.LoadRoom(ctx, room.ID)
			req.NoError(err)
			req.Equal("x=1", got.Code)
			req.Equal(domain.LanguageJavaScript, got.Language)
			req.Len(got.Participants, 1)
		})
	}
}

func TestRedis_RoundTrip(t *testing.T) {
	r := openTestRedis(t)
	if r == nil {
		t.Skip("CODEROOM_TEST_REDIS_ADDR not set")
	}
	req := require.New(t)
	ctx := context.Background()
	room, host := sampleRoom(t)
	guest, err := domain.NewGuest("Bob", 0, host.JoinedAt.Add(time.Second))
	req.NoError(err)
	room.AddParticipant(*guest)

	req.NoError(r.SaveRoom(ctx, room))
	n, err := r.rdb.Exists(ctx, r.prefix+":room:"+string(room.ID)).Result()
	req.NoError(err)
	req.Equal(int64(1), n)

	got, err := r.LoadRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal(room.Code, got.Code)
	req.Len(got.Participants, 2)
	req.Equal(host.ID, got.Participants[0].ID)
	req.Equal(guest.ID, got.Participants[1].ID)
	req.Nil(got.Participants[0].Cursor)

	_, err = r.LoadRoom(ctx, "missing")
	req.ErrorIs(err, domain.ErrNotFound)
}
