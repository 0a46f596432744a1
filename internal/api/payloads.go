package api

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
)

// Field names follow the listing API, which serializes its row structs directly.

type submissionPayload struct {
	ID        string `json:"Id"`
	Title     string `json:"Title"`
	Username  string `json:"Username"`
	Link      string `json:"Link"`
	Body      string `json:"Body"`
	Flagged   bool   `json:"Flagged"`
	CreatedAt string `json:"Created_at"`
	Upvotes   int    `json:"Upvotes"`
	Downvotes int    `json:"Downvotes"`
}

type listingResponsePayload struct {
	Results []submissionPayload `json:"results"`
	Next    *string             `json:"next"`
}

type submissionMetadataPayload struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	IsFlagged bool   `json:"isFlagged"`
	CreatedAt string `json:"createdAt"`
}

type submissionVotesPayload struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	Total     int `json:"total"`
}

type submissionResponsePayload struct {
	ID       string                    `json:"id"`
	Metadata submissionMetadataPayload `json:"metadata"`
	Votes    submissionVotesPayload    `json:"votes"`
}

type viewerVoteResponsePayload struct {
	DidVote   bool `json:"didVote"`
	DidUpvote bool `json:"didUpvote"`
}

type voteRequestPayload struct {
	ID     string `json:"Id"`
	Upvote bool   `json:"Upvote"`
}

type tallyResponsePayload struct {
	ID         string `json:"id"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
	ViewerVote string `json:"viewerVote"`
}

type commentRequestPayload struct {
	InResponseTo string `json:"InResponseTo"`
	Content      string `json:"Content"`
	CaptchaToken string `json:"CaptchaToken"`
}

type commentResponsePayload struct {
	Success   bool   `json:"success"`
	CommentID string `json:"commentID"`
}

type commentPayload struct {
	ID            string `json:"Id"`
	InResponseTo  string `json:"InResponseTo"`
	Content       string `json:"Content"`
	Author        string `json:"Author"`
	ParentComment string `json:"ParentComment"`
	Flagged       bool   `json:"Flagged"`
	CreatedAt     string `json:"CreatedAt"`
	Upvotes       int    `json:"Upvotes"`
	Downvotes     int    `json:"Downvotes"`
	HasUpvoted    bool   `json:"HasUpvoted"`
	HasDownvoted  bool   `json:"HasDownvoted"`
}

type commentListResponsePayload struct {
	Notice   string           `json:"notice,omitempty"`
	Comments []commentPayload `json:"comments"`
}

type errorResponsePayload struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func (p submissionPayload) toSubmission() feed.Submission {
	return feed.Submission{
		ID:        p.ID,
		Title:     p.Title,
		Author:    p.Username,
		Link:      p.Link,
		Body:      p.Body,
		Flagged:   p.Flagged,
		CreatedAt: parseTimestamp(p.CreatedAt),
		Upvotes:   p.Upvotes,
		Downvotes: p.Downvotes,
	}
}

func (p tallyResponsePayload) toTally() (votes.Tally, error) {
	viewerVote, err := votes.ParseVote(p.ViewerVote)
	if err != nil {
		return votes.Tally{}, err
	}
	return votes.Tally{Upvotes: p.Upvotes, Downvotes: p.Downvotes, ViewerVote: viewerVote}, nil
}

func (p commentPayload) toComment() comments.Comment {
	return comments.Comment{
		ID:           p.ID,
		SubmissionID: p.InResponseTo,
		ParentID:     p.ParentComment,
		Author:       p.Author,
		Content:      p.Content,
		Flagged:      p.Flagged,
		CreatedAt:    parseTimestamp(p.CreatedAt),
		Upvotes:      p.Upvotes,
		Downvotes:    p.Downvotes,
		ViewerVote:   votes.FromFlags(p.HasUpvoted, p.HasDownvoted),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// parseTimestamp accepts the formats the API has emitted; unknown formats yield the zero time.
func parseTimestamp(rawInput string) time.Time {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
