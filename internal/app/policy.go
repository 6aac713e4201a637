package app

import "github.com/dkeye/coderoom/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a session that missed a delivery. The
// fan-out itself has already moved on by the time it is consulted.
type Policy interface {
	OnBackPressure(hub *core.Hub, member core.Session) BackpressureAction
}

// SimplePolicy kicks sessions that fell behind so they reconnect and resync
// from a fresh snapshot. With DropOnly it just drops the frame.
type SimplePolicy struct {
	DropOnly bool
}

func (p SimplePolicy) OnBackPressure(hub *core.Hub, member core.Session) BackpressureAction {
	if p.DropOnly {
		return DropFrame
	}
	return KickMember
}

// ParsePolicy maps the configured name onto a policy.
func ParsePolicy(name string) Policy {
	return SimplePolicy{DropOnly: name == "drop"}
}
