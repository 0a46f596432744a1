package comments

import (
	"fmt"
	"strings"
	"sync"
)

// Store holds the latest server comment list per submission. Lists are replaced
// wholesale on every refresh; nothing is merged.
type Store struct {
	mu           sync.RWMutex
	bySubmission map[string][]Comment
	owners       map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		bySubmission: make(map[string][]Comment),
		owners:       make(map[string]string),
	}
}

// Replace installs list as the authoritative comments for submissionID.
func (s *Store) Replace(submissionID string, list []Comment) error {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return ErrInvalidSubmissionID
	}
	replacement := make([]Comment, 0, len(list))
	for index, comment := range list {
		comment.ID = strings.TrimSpace(comment.ID)
		if comment.ID == "" {
			return fmt.Errorf("%w: position %d", ErrInvalidCommentID, index)
		}
		comment.SubmissionID = submissionID
		comment.ParentID = strings.TrimSpace(comment.ParentID)
		replacement = append(replacement, comment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, previous := range s.bySubmission[submissionID] {
		delete(s.owners, previous.ID)
	}
	s.bySubmission[submissionID] = replacement
	for _, comment := range replacement {
		s.owners[comment.ID] = submissionID
	}
	return nil
}

// List returns the comments for submissionID in server order.
func (s *Store) List(submissionID string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Comment(nil), s.bySubmission[submissionID]...)
}

// Lookup finds a comment by id across submissions.
func (s *Store) Lookup(commentID string) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submissionID, ok := s.owners[commentID]
	if !ok {
		return Comment{}, false
	}
	for _, comment := range s.bySubmission[submissionID] {
		if comment.ID == commentID {
			return comment, true
		}
	}
	return Comment{}, false
}

// Tree rebuilds the reply hierarchy for submissionID. Comments whose parent is not in
// the list are treated as top level. Sibling order follows server order.
func (s *Store) Tree(submissionID string) []*Node {
	return BuildTree(s.List(submissionID))
}

// BuildTree nests a flat comment list by parent reference. Parent cycles are broken by
// promoting every comment on the cycle to the top level.
func BuildTree(list []Comment) []*Node {
	nodes := make(map[string]*Node, len(list))
	parents := make(map[string]string, len(list))
	order := make([]string, 0, len(list))
	for _, comment := range list {
		if _, duplicate := nodes[comment.ID]; duplicate {
			continue
		}
		nodes[comment.ID] = &Node{Comment: comment}
		parents[comment.ID] = comment.ParentID
		order = append(order, comment.ID)
	}

	roots := make([]*Node, 0)
	for _, commentID := range order {
		node := nodes[commentID]
		parentID := parents[commentID]
		parent, ok := nodes[parentID]
		if parentID == "" || !ok || onCycle(commentID, parents) {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}
	return roots
}

func onCycle(commentID string, parents map[string]string) bool {
	current := parents[commentID]
	for steps := 0; steps < len(parents) && current != ""; steps++ {
		if current == commentID {
			return true
		}
		next, ok := parents[current]
		if !ok {
			return false
		}
		current = next
	}
	return false
}
