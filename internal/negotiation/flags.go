package negotiation

// Role decides who yields during an offer collision. A session starts
// Impolite; the occupant that was already in the room becomes Polite when a
// peer joins.
type Role int

const (
	Impolite Role = iota
	Polite
)

func (r Role) String() string {
	if r == Polite {
		return "polite"
	}
	return "impolite"
}

// Flags is the transient negotiation state of one session.
type Flags struct {
	MakingOffer                bool
	IgnoringOffer              bool
	SettingRemoteAnswerPending bool
	// SuppressingInitialOffer stops the next local offer after a reset, so the
	// impolite side makes the first offer of the new connection.
	SuppressingInitialOffer bool
}

// Clear reports whether no flag is set.
func (f Flags) Clear() bool {
	return f == Flags{}
}

// State is a point-in-time copy of the coordinator, for tests and logs.
type State struct {
	Role              Role
	Flags             Flags
	PendingCandidates int
}
