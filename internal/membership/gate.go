package membership

import "errors"

var (
	// ErrEmptyParticipant indicates a participant identity was blank at setup.
	ErrEmptyParticipant = errors.New("participant identity must not be empty")

	// ErrDuplicateParticipant indicates both participants share one identity.
	ErrDuplicateParticipant = errors.New("participants must be distinct")
)

// Gate authorizes exactly two fixed principals. The identities are set once
// at construction and compared by equality on every check; there is no role
// hierarchy and no way to add or replace a participant.
type Gate struct {
	a string
	b string
}

// New builds a gate for the two participants.
func New(a, b string) (*Gate, error) {
	if a == "" || b == "" {
		return nil, ErrEmptyParticipant
	}
	if a == b {
		return nil, ErrDuplicateParticipant
	}
	return &Gate{a: a, b: b}, nil
}

// IsAuthorized reports whether the caller is one of the two participants.
func (g *Gate) IsAuthorized(caller string) bool {
	return caller == g.a || caller == g.b
}

// ParticipantA returns the first participant's identity. The first
// participant deterministically absorbs the extra unit when an odd shared
// payment ties on balances.
func (g *Gate) ParticipantA() string { return g.a }

// ParticipantB returns the second participant's identity.
func (g *Gate) ParticipantB() string { return g.b }

// Other returns the partner of the given participant, or empty when the
// caller is not a participant.
func (g *Gate) Other(caller string) string {
	switch caller {
	case g.a:
		return g.b
	case g.b:
		return g.a
	default:
		return ""
	}
}
