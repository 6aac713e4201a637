package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/coderoom/internal/core"
	"github.com/dkeye/coderoom/internal/domain"
	"github.com/dkeye/coderoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

type participantWrite struct {
	roomID domain.RoomID
	p      domain.Participant
}

const (
	defaultRetryBase = 200 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

// Persister writes room state to the store off the broadcast path.
// Room snapshots are coalesced per room so only the latest one is written.
// A room snapshot carries the full membership, so participant rows queued for
// a room whose snapshot is written in the same drain are dropped.
// A failed write stays pending and is retried after a backoff; it never
// affects in-memory state.
type Persister struct {
	store   core.RoomStore
	timeout time.Duration

	mu           sync.Mutex
	rooms        map[domain.RoomID]domain.Room
	roomOrder    []domain.RoomID
	participants []participantWrite

	retryBase time.Duration
	retryMax  time.Duration
	backoff   time.Duration
	retry     *time.Timer

	wake chan struct{}
}

func NewPersister(store core.RoomStore, timeout time.Duration) *Persister {
	return &Persister{
		store:     store,
		timeout:   timeout,
		rooms:     make(map[domain.RoomID]domain.Room),
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
		wake:      make(chan struct{}, 1),
	}
}

func (p *Persister) EnqueueRoom(room domain.Room) {
	p.mu.Lock()
	if _, pending := p.rooms[room.ID]; !pending {
		p.roomOrder = append(p.roomOrder, room.ID)
	}
	p.rooms[room.ID] = room.WithoutCursors()
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) EnqueueParticipant(roomID domain.RoomID, pt domain.Participant) {
	p.mu.Lock()
	p.participants = append(p.participants, participantWrite{roomID: roomID, p: pt.WithoutCursor()})
	p.mu.Unlock()
	p.signal()
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many writes wait for the next drain.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms) + len(p.participants)
}

// Run drains pending writes until ctx is done, then flushes once more.
func (p *Persister) Run(ctx context.Context) error {
	log.Info().Str("module", "app.persister").Msg("persister started")
	for {
		select {
		case <-ctx.Done():
			p.stopRetry()
			flushCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
			p.Flush(flushCtx)
			cancel()
			log.Info().Str("module", "app.persister").Int("pending", p.Pending()).Msg("persister stopped")
			return nil
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush writes everything pending now. Rooms go first so that participant
// rows always have their room.
func (p *Persister) Flush(ctx context.Context) {
	p.mu.Lock()
	rooms := make([]domain.Room, 0, len(p.roomOrder))
	for _, id := range p.roomOrder {
		rooms = append(rooms, p.rooms[id])
	}
	participants := p.participants
	p.rooms = make(map[domain.RoomID]domain.Room)
	p.roomOrder = nil
	p.participants = nil
	p.mu.Unlock()

	failed := false
	written := make(map[domain.RoomID]struct{}, len(rooms))
	for _, room := range rooms {
		written[room.ID] = struct{}{}
		if err := p.write(ctx, func(c context.Context) error { return p.store.SaveRoom(c, room) }); err != nil {
			metrics.PersistFailures.WithLabelValues("save_room").Inc()
			log.Error().Err(err).Str("module", "app.persister").Str("room", string(room.ID)).Msg("save room")
			p.requeueRoom(room)
			failed = true
		}
	}
	for _, w := range participants {
		if _, covered := written[w.roomID]; covered {
			continue
		}
		if err := p.write(ctx, func(c context.Context) error { return p.store.SaveParticipant(c, w.roomID, w.p) }); err != nil {
			metrics.PersistFailures.WithLabelValues("save_participant").Inc()
			log.Error().Err(err).Str("module", "app.persister").Str("room", string(w.roomID)).Str("participant", string(w.p.ID)).Msg("save participant")
			p.mu.Lock()
			p.participants = append(p.participants, w)
			p.mu.Unlock()
			failed = true
		}
	}

	if failed {
		p.scheduleRetry()
	} else {
		p.mu.Lock()
		p.backoff = 0
		p.mu.Unlock()
	}
}

// scheduleRetry wakes the drain loop after a doubling delay. At most one
// retry is armed at a time.
func (p *Persister) scheduleRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retry != nil {
		return
	}
	switch {
	case p.backoff == 0:
		p.backoff = p.retryBase
	case p.backoff < p.retryMax:
		p.backoff = min(2*p.backoff, p.retryMax)
	}
	p.retry = time.AfterFunc(p.backoff, func() {
		p.mu.Lock()
		p.retry = nil
		p.mu.Unlock()
		p.signal()
	})
}

func (p *Persister) stopRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
}

func (p *Persister) write(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(c)
}

// requeueRoom keeps a failed snapshot unless a newer one arrived meanwhile.
func (p *Persister) requeueRoom(room domain.Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, newer := p.rooms[room.ID]; newer {
		return
	}
	p.rooms[room.ID] = room
	p.roomOrder = append(p.roomOrder, room.ID)
}
