package coordinator

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/tally/internal/votes"
)

var (
	// ErrUnauthenticated indicates a mutation was attempted without a session; no request was issued.
	ErrUnauthenticated = errors.New("coordinator: unauthenticated")
	// ErrAlreadyPending indicates the entity already has an in-flight vote; no request was issued.
	ErrAlreadyPending = votes.ErrAlreadyPending
	// ErrNetworkFailure indicates the request did not complete or returned a non-2xx status other than 401.
	ErrNetworkFailure = errors.New("coordinator: network failure")
	// ErrSessionExpired indicates the API rejected the credential with 401; the session was invalidated.
	ErrSessionExpired = errors.New("coordinator: session expired")
	// ErrSessionChanged indicates the session changed while the request was in flight.
	ErrSessionChanged = errors.New("coordinator: session changed during request")
	// ErrEmptyComment indicates comment text was blank.
	ErrEmptyComment = errors.New("coordinator: comment text required")
	// ErrChallengeFailed indicates the anti-abuse token could not be obtained.
	ErrChallengeFailed = errors.New("coordinator: challenge unavailable")
)

const (
	opNew             = "coordinator.new"
	opSubmitVote      = "coordinator.submit_vote"
	opVoteComment     = "coordinator.vote_comment"
	opSubmitComment   = "coordinator.submit_comment"
	opRefreshComments = "coordinator.refresh_comments"
	opOpenSubmission  = "coordinator.open_submission"
	opFeed            = "coordinator.feed"
)

const (
	reasonUnauthenticated = "unauthenticated"
	reasonAlreadyPending  = "already_pending"
	reasonUnknownEntity   = "unknown_entity"
	reasonInvalidInput    = "invalid_input"
	reasonSessionExpired  = "session_expired"
	reasonSessionChanged  = "session_changed"
	reasonNetworkFailure  = "network_failure"
	reasonEmptyContent    = "empty_content"
	reasonChallengeFailed = "challenge_failed"
	reasonStoreFailure    = "store_failure"
)

// Error is a classified coordinator failure. errors.Is matches both the taxonomy
// sentinel and the underlying cause.
type Error struct {
	code  string
	kind  error
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.cause)
}

func (e *Error) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.kind != nil {
		unwrapped = append(unwrapped, e.kind)
	}
	if e.cause != nil {
		unwrapped = append(unwrapped, e.cause)
	}
	return unwrapped
}

// Code returns the dotted operation.reason code.
func (e *Error) Code() string {
	return e.code
}

func newError(operation, reason string, kind, cause error) error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), kind: kind, cause: cause}
}
