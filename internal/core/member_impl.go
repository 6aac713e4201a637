package core

// session implements Session by pairing an id with its transport.
type session struct {
	id   SessionID
	conn SignalConnection
}

func NewSession(id SessionID, conn SignalConnection) Session {
	return &session{id: id, conn: conn}
}

func (s *session) ID() SessionID            { return s.id }
func (s *session) Signal() SignalConnection { return s.conn }
