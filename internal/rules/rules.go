// internal/rules/rules.go
//
// Package rules is the game-rules collaborator for the coordination engine.
// The engine routes actions; it does not understand them. Validation is a
// pluggable predicate so real rule sets can be dropped in without touching
// the routing code.
package rules

import "fmt"

// Action is one entry of a game's ordered action log.
type Action int

const (
	ActionInit Action = iota
	ActionMove
	ActionFinished
)

func (a Action) String() string {
	switch a {
	case ActionInit:
		return "Init"
	case ActionMove:
		return "Move"
	case ActionFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// UserRole identifies how a user participates in a game room.
type UserRole int

const (
	RoleObserver UserRole = iota
	RoleSeat1
	RoleSeat2
)

func (r UserRole) String() string {
	switch r {
	case RoleSeat1:
		return "Player 1"
	case RoleSeat2:
		return "Player 2"
	default:
		return "Observer"
	}
}

// Illegal-move reasons reported back to clients. They share the numeric
// space of the game error registry.
const (
	ReasonIllegalMove uint32 = 401
	ReasonNotYourTurn uint32 = 402
)

// Validator decides whether an action may be appended to the given log.
// It returns ok=true to accept, or ok=false with a reason code. The log
// passed in never includes the candidate action.
type Validator func(log []Action, action Action) (ok bool, reason uint32)

// DefaultValidator accepts Move and Finished on a game that has been
// inited and has not finished. Init is appended by the engine itself and
// is never accepted from a client.
func DefaultValidator(log []Action, action Action) (bool, uint32) {
	if len(log) == 0 {
		return false, ReasonIllegalMove
	}
	for _, a := range log {
		if a == ActionFinished {
			return false, ReasonIllegalMove
		}
	}
	if action == ActionInit {
		return false, ReasonIllegalMove
	}
	return true, 0
}
