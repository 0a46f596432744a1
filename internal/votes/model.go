package votes

import (
	"errors"
	"fmt"
	"strings"
)

const maxEntityIDLength = 190

var (
	// ErrUnauthenticated indicates that a vote was attempted without an active session.
	ErrUnauthenticated = errors.New("votes: unauthenticated")
	// ErrAlreadyPending indicates that the entity already has an in-flight optimistic vote.
	ErrAlreadyPending = errors.New("votes: mutation already pending")
	// ErrUnknownEntity indicates that no server state has been seeded for the entity.
	ErrUnknownEntity = errors.New("votes: unknown entity")
	// ErrInvalidIntent indicates that a vote intent is neither up nor down.
	ErrInvalidIntent = errors.New("votes: invalid intent")
	// ErrInvalidEntityID indicates that an entity identifier is empty or exceeds storage bounds.
	ErrInvalidEntityID = errors.New("votes: invalid entity id")
	// ErrInvalidTally indicates that a server tally carried negative counts.
	ErrInvalidTally = errors.New("votes: invalid tally")
)

// Vote enumerates the viewer's vote on an entity.
type Vote int

const (
	// VoteNone means the viewer has not voted.
	VoteNone Vote = iota
	// VoteUp is an upvote.
	VoteUp
	// VoteDown is a downvote.
	VoteDown
)

// String returns the wire name of the vote.
func (v Vote) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "none"
	}
}

// IsIntent reports whether the vote can be submitted as a mutation.
func (v Vote) IsIntent() bool {
	return v == VoteUp || v == VoteDown
}

// ParseVote converts a wire or CLI value into a Vote.
func ParseVote(rawInput string) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "up", "upvote", "+":
		return VoteUp, nil
	case "down", "downvote", "-":
		return VoteDown, nil
	case "none", "":
		return VoteNone, nil
	default:
		return VoteNone, fmt.Errorf("%w: %q", ErrInvalidIntent, rawInput)
	}
}

// FromFlags maps the didUpvote/didDownvote pair reported by listing endpoints.
func FromFlags(upvoted, downvoted bool) Vote {
	switch {
	case upvoted:
		return VoteUp
	case downvoted:
		return VoteDown
	default:
		return VoteNone
	}
}

// ValidateEntityID trims and bounds-checks an opaque entity identifier.
func ValidateEntityID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntityID)
	}
	if len(trimmed) > maxEntityIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntityID, maxEntityIDLength)
	}
	return trimmed, nil
}

// Tally is the server-authoritative vote state for one entity.
type Tally struct {
	Upvotes    int
	Downvotes  int
	ViewerVote Vote
}

func (t Tally) validate() error {
	if t.Upvotes < 0 || t.Downvotes < 0 {
		return fmt.Errorf("%w: %d/%d", ErrInvalidTally, t.Upvotes, t.Downvotes)
	}
	return nil
}

// State is the local vote state for a submission or comment.
type State struct {
	EntityID   string
	Upvotes    int
	Downvotes  int
	ViewerVote Vote
	// Pending is the in-flight optimistic intent, VoteNone when idle.
	Pending Vote
}

// Score is the displayed score.
func (s State) Score() int {
	return s.Upvotes - s.Downvotes
}

// HasPending reports whether an optimistic mutation is in flight.
func (s State) HasPending() bool {
	return s.Pending != VoteNone
}

// Tally returns the counts and viewer vote without the pending marker.
func (s State) Tally() Tally {
	return Tally{Upvotes: s.Upvotes, Downvotes: s.Downvotes, ViewerVote: s.ViewerVote}
}

// StateFromTally builds an idle state from server truth.
func StateFromTally(entityID string, tally Tally) State {
	return State{
		EntityID:   entityID,
		Upvotes:    tally.Upvotes,
		Downvotes:  tally.Downvotes,
		ViewerVote: tally.ViewerVote,
		Pending:    VoteNone,
	}
}

// applyIntent removes the confirmed vote's count, adds the intent's count and marks it pending.
func applyIntent(confirmed State, intent Vote) State {
	next := confirmed
	switch confirmed.ViewerVote {
	case VoteUp:
		next.Upvotes = decrement(next.Upvotes)
	case VoteDown:
		next.Downvotes = decrement(next.Downvotes)
	}
	switch intent {
	case VoteUp:
		next.Upvotes++
	case VoteDown:
		next.Downvotes++
	}
	next.ViewerVote = intent
	next.Pending = intent
	return next
}

func decrement(count int) int {
	if count <= 0 {
		return 0
	}
	return count - 1
}
