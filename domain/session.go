package domain

// SessionState is the lifecycle of one chat session.
type SessionState int

const (
	// StateDisconnected means no store client has been bound yet.
	StateDisconnected SessionState = iota

	// StateConnecting means the feed and presence subscriptions are being opened.
	StateConnecting

	// StateAwaitingIdentity means subscriptions are live and a name can be claimed.
	StateAwaitingIdentity

	// StateActive means a name has been claimed and messages can be sent.
	StateActive

	// StateTerminated is final, a new session must be created.
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// LocalSessionState is owned by the session controller.
// Services only read it through the pointer they are given.
type LocalSessionState struct {
	Identity *Participant
	Joined   bool
}

func (s *LocalSessionState) Claim(p Participant) {
	s.Identity = &p
	s.Joined = true
}

func (s *LocalSessionState) Reset() {
	s.Identity = nil
	s.Joined = false
}

// IsSelf reports whether the roster record key belongs to the local identity.
func (s *LocalSessionState) IsSelf(id string) bool {
	return s.Identity != nil && s.Identity.ID == id
}

// JoinedBefore reports whether p's record was written after the local claim.
// Server timestamps strictly increase, it is the order the store saw them in.
func (s *LocalSessionState) JoinedBefore(p Participant) bool {
	return s.Identity != nil && p.JoinedAt.After(s.Identity.JoinedAt)
}
