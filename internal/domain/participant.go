package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const MaxNameLen = 64

const HostColor = "#22c55e"

// Guest colors never include HostColor.
var guestPalette = []string{"#3b82f6", "#f97316", "#a855f7", "#ec4899", "#eab308", "#14b8a6"}

type ParticipantID string

type CursorPosition struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

type Participant struct {
	ID       ParticipantID   `json:"id"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	IsHost   bool            `json:"isHost"`
	Cursor   *CursorPosition `json:"cursorPosition,omitempty"`
	JoinedAt time.Time       `json:"joinedAt"`
}

func validateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name is empty: %w", ErrValidation)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name longer than %d bytes: %w", MaxNameLen, ErrValidation)
	}
	return nil
}

// NewHost builds the creator of a room.
func NewHost(name string, at time.Time) (*Participant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		Name:     name,
		Color:    HostColor,
		IsHost:   true,
		JoinedAt: at,
	}, nil
}

// NewGuest builds a joining participant. seq is the number of guests that
// joined before it and picks the palette slot.
func NewGuest(name string, seq int, at time.Time) (*Participant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		Name:     name,
		Color:    guestPalette[seq%len(guestPalette)],
		JoinedAt: at,
	}, nil
}

func (p Participant) Clone() Participant {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	return p
}

// WithoutCursor is the shape stores persist.
func (p Participant) WithoutCursor() Participant {
	p.Cursor = nil
	return p
}
