package comments

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/votes"
)

var (
	// ErrInvalidSubmissionID indicates an empty submission identifier.
	ErrInvalidSubmissionID = errors.New("comments: invalid submission id")
	// ErrInvalidCommentID indicates an empty comment identifier in a server list.
	ErrInvalidCommentID = errors.New("comments: invalid comment id")
)

// Comment is the server-authoritative state of one comment. Comments form a flat list
// with an optional parent reference; Flagged is set by the server only.
type Comment struct {
	ID           string
	SubmissionID string
	ParentID     string
	Author       string
	Content      string
	Flagged      bool
	CreatedAt    time.Time
	Upvotes      int
	Downvotes    int
	ViewerVote   votes.Vote
}

// VoteState projects the comment onto its vote state.
func (c Comment) VoteState() votes.State {
	return votes.State{
		EntityID:   c.ID,
		Upvotes:    c.Upvotes,
		Downvotes:  c.Downvotes,
		ViewerVote: c.ViewerVote,
	}
}

// Node is a comment with its replies, built on demand.
type Node struct {
	Comment Comment
	Replies []*Node
}
