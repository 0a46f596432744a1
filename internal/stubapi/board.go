package stubapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/ids"
)

// PageSize is the number of rows per listing page.
const PageSize = 10

var (
	errUnknownSubmission = errors.New("stubapi: unknown submission")
	errUnknownComment    = errors.New("stubapi: unknown comment")
	errUnknownParent     = errors.New("stubapi: parent comment not on submission")
	errEmptyContent      = errors.New("stubapi: content required")
	errUnknownSort       = errors.New("stubapi: unknown sort")
)

// Submission is a stored post.
type Submission struct {
	ID        string
	Title     string
	Author    string
	Link      string
	Body      string
	Flagged   bool
	CreatedAt time.Time
}

// Comment is a stored comment.
type Comment struct {
	ID           string
	SubmissionID string
	ParentID     string
	Author       string
	Content      string
	Flagged      bool
	CreatedAt    time.Time
}

// Counts is a vote tally with the requesting user's own vote ("up", "down" or "none").
type Counts struct {
	Upvotes    int
	Downvotes  int
	ViewerVote string
}

type voteKey struct {
	user   string
	entity string
}

// Board is the in-memory dataset behind the stub API.
type Board struct {
	mu             sync.RWMutex
	submissions    map[string]Submission
	order          []string
	comments       map[string]Comment
	commentOrder   []string
	submissionVote map[voteKey]bool
	commentVote    map[voteKey]bool
	ids            ids.Provider
	clock          func() time.Time
}

// BoardConfig configures a Board.
type BoardConfig struct {
	IDProvider ids.Provider
	Clock      func() time.Time
}

// NewBoard constructs an empty Board.
func NewBoard(cfg BoardConfig) *Board {
	provider := cfg.IDProvider
	if provider == nil {
		provider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Board{
		submissions:    make(map[string]Submission),
		comments:       make(map[string]Comment),
		submissionVote: make(map[voteKey]bool),
		commentVote:    make(map[voteKey]bool),
		ids:            provider,
		clock:          clock,
	}
}

// AddSubmission stores submission, assigning an id and timestamp when missing.
func (b *Board) AddSubmission(submission Submission) (Submission, error) {
	if submission.ID == "" {
		id, err := b.ids.NewID()
		if err != nil {
			return Submission{}, fmt.Errorf("stubapi: submission id: %w", err)
		}
		submission.ID = id
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = b.clock().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.submissions[submission.ID]; !exists {
		b.order = append(b.order, submission.ID)
	}
	b.submissions[submission.ID] = submission
	return submission, nil
}

// SubmissionRow is a listing row with its counts.
type SubmissionRow struct {
	Submission
	Upvotes   int
	Downvotes int
}

// List returns one page of submissions ordered by sortKey ("latest", "best" or "oldest").
func (b *Board) List(sortKey string, offset int) ([]SubmissionRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows := b.rowsLocked(func(Submission) bool { return true })
	if err := sortRows(rows, sortKey); err != nil {
		return nil, err
	}
	return paginate(rows, offset), nil
}

// UserSubmissions returns one page of author's submissions, newest first.
func (b *Board) UserSubmissions(author string, offset int) []SubmissionRow {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows := b.rowsLocked(func(s Submission) bool { return s.Author == author })
	_ = sortRows(rows, "latest")
	return paginate(rows, offset)
}

// Submission returns a submission and its counts for viewer.
func (b *Board) Submission(id, viewer string) (SubmissionRow, Counts, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	submission, ok := b.submissions[id]
	if !ok {
		return SubmissionRow{}, Counts{}, errUnknownSubmission
	}
	counts := countLocked(b.submissionVote, id, viewer)
	return SubmissionRow{Submission: submission, Upvotes: counts.Upvotes, Downvotes: counts.Downvotes}, counts, nil
}

// VoteSubmission records viewer's vote on a submission and returns the new counts.
func (b *Board) VoteSubmission(viewer, id string, upvote bool) (Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.submissions[id]; !ok {
		return Counts{}, errUnknownSubmission
	}
	b.submissionVote[voteKey{user: viewer, entity: id}] = upvote
	return countLocked(b.submissionVote, id, viewer), nil
}

// VoteComment records viewer's vote on a comment and returns the new counts.
func (b *Board) VoteComment(viewer, id string, upvote bool) (Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.comments[id]; !ok {
		return Counts{}, errUnknownComment
	}
	b.commentVote[voteKey{user: viewer, entity: id}] = upvote
	return countLocked(b.commentVote, id, viewer), nil
}

// AddComment stores a comment by author and returns its id.
func (b *Board) AddComment(author, submissionID, parentID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errEmptyContent
	}
	id, err := b.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("stubapi: comment id: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.submissions[submissionID]; !ok {
		return "", errUnknownSubmission
	}
	if parentID != "" {
		parent, ok := b.comments[parentID]
		if !ok || parent.SubmissionID != submissionID {
			return "", errUnknownParent
		}
	}
	b.comments[id] = Comment{
		ID:           id,
		SubmissionID: submissionID,
		ParentID:     parentID,
		Author:       author,
		Content:      content,
		CreatedAt:    b.clock().UTC(),
	}
	b.commentOrder = append(b.commentOrder, id)
	return id, nil
}

// CommentRow is a comment with its counts for a viewer.
type CommentRow struct {
	Comment
	Counts
}

// Comments returns every comment on submissionID in creation order.
func (b *Board) Comments(submissionID, viewer string) ([]CommentRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.submissions[submissionID]; !ok {
		return nil, errUnknownSubmission
	}
	rows := make([]CommentRow, 0)
	for _, id := range b.commentOrder {
		comment := b.comments[id]
		if comment.SubmissionID != submissionID {
			continue
		}
		rows = append(rows, CommentRow{Comment: comment, Counts: countLocked(b.commentVote, id, viewer)})
	}
	return rows, nil
}

func (b *Board) rowsLocked(include func(Submission) bool) []SubmissionRow {
	rows := make([]SubmissionRow, 0, len(b.order))
	for _, id := range b.order {
		submission := b.submissions[id]
		if !include(submission) {
			continue
		}
		counts := countLocked(b.submissionVote, id, "")
		rows = append(rows, SubmissionRow{Submission: submission, Upvotes: counts.Upvotes, Downvotes: counts.Downvotes})
	}
	return rows
}

func countLocked(ledger map[voteKey]bool, entity, viewer string) Counts {
	counts := Counts{ViewerVote: "none"}
	for key, upvote := range ledger {
		if key.entity != entity {
			continue
		}
		if upvote {
			counts.Upvotes++
		} else {
			counts.Downvotes++
		}
		if viewer != "" && key.user == viewer {
			counts.ViewerVote = "down"
			if upvote {
				counts.ViewerVote = "up"
			}
		}
	}
	return counts
}

func sortRows(rows []SubmissionRow, sortKey string) error {
	newest := func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	}
	switch sortKey {
	case "", "latest":
		sort.SliceStable(rows, newest)
	case "oldest":
		sort.SliceStable(rows, func(i, j int) bool { return newest(j, i) })
	case "best":
		sort.SliceStable(rows, func(i, j int) bool {
			left := rows[i].Upvotes - rows[i].Downvotes
			right := rows[j].Upvotes - rows[j].Downvotes
			if left != right {
				return left > right
			}
			return newest(i, j)
		})
	default:
		return fmt.Errorf("%w: %q", errUnknownSort, sortKey)
	}
	return nil
}

func paginate(rows []SubmissionRow, offset int) []SubmissionRow {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []SubmissionRow{}
	}
	end := offset + PageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
