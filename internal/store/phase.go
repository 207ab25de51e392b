// internal/store/phase.go
package store

// Phase is one stage of the game loop. The server drives all transitions; the
// client never enforces a transition graph and must keep rendering even when
// the server sends a phase it has never heard of.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseDay     Phase = "day"
	PhaseNight   Phase = "night"
	PhaseVoting  Phase = "voting"
	PhaseResults Phase = "results"
)

// Known reports whether the phase is one the client recognizes. Unknown
// phases are kept verbatim and surfaced to the UI as-is.
func (p Phase) Known() bool {
	switch p {
	case PhaseLobby, PhaseDay, PhaseNight, PhaseVoting, PhaseResults:
		return true
	}
	return false
}

// AllowsVoting reports whether votes may be cast in this phase.
func (p Phase) AllowsVoting() bool {
	return p == PhaseDay || p == PhaseVoting
}
