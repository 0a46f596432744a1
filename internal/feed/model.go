package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PageSize is the fixed listing page size.
const PageSize = 10

var (
	// ErrAtEnd indicates that the last loaded page was short, so there is nothing to advance to.
	ErrAtEnd = errors.New("feed: at end of feed")
	// ErrInvalidSortKey indicates an unknown sort key.
	ErrInvalidSortKey = errors.New("feed: invalid sort key")
)

// SortKey selects the server-side ordering of a listing.
type SortKey string

const (
	// SortLatest orders by creation time, newest first.
	SortLatest SortKey = "latest"
	// SortTop orders by score.
	SortTop SortKey = "top"
	// SortOldest orders by creation time, oldest first.
	SortOldest SortKey = "oldest"
)

// ParseSortKey validates a sort key. The listing endpoint's "best" is accepted as Top.
func ParseSortKey(rawInput string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case "", string(SortLatest):
		return SortLatest, nil
	case string(SortTop), "best":
		return SortTop, nil
	case string(SortOldest):
		return SortOldest, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortKey, rawInput)
	}
}

// Submission is a listing summary. Order within a page is the server's.
type Submission struct {
	ID        string
	Title     string
	Author    string
	Link      string
	Body      string
	Flagged   bool
	CreatedAt time.Time
	Upvotes   int
	Downvotes int
}

// Score is upvotes minus downvotes.
func (s Submission) Score() int {
	return s.Upvotes - s.Downvotes
}

// PageRequest is what a Source receives for one fetch.
type PageRequest struct {
	SortKey  SortKey
	Offset   int
	PageSize int
}

// Status enumerates cursor states.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusErrored Status = "errored"
)

// Page is an immutable view of the cursor.
type Page struct {
	SortKey    SortKey
	Offset     int
	Items      []Submission
	Status     Status
	AtEnd      bool
	Generation uint64
	Err        error
}

// Number is the one-based page number.
func (p Page) Number() int {
	return p.Offset/PageSize + 1
}
