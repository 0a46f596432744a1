package comments

import (
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/tally/internal/votes"
)

func TestReplaceSwapsListWholesale(t *testing.T) {
	store := NewStore()
	first := []Comment{{ID: "c1", Content: "first"}, {ID: "c2", Content: "second"}}
	if err := store.Replace("s1", first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Replace("s1", []Comment{{ID: "c3", Content: "third"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	list := store.List("s1")
	if len(list) != 1 || list[0].ID != "c3" {
		t.Fatalf("expected replacement list, got %+v", list)
	}
	if _, ok := store.Lookup("c1"); ok {
		t.Fatalf("replaced comment must no longer resolve")
	}
	comment, ok := store.Lookup("c3")
	if !ok || comment.SubmissionID != "s1" {
		t.Fatalf("expected c3 to belong to s1, got %+v", comment)
	}
}

func TestReplaceValidatesIdentifiers(t *testing.T) {
	store := NewStore()
	if err := store.Replace(" ", nil); !errors.Is(err, ErrInvalidSubmissionID) {
		t.Fatalf("expected ErrInvalidSubmissionID, got %v", err)
	}
	if err := store.Replace("s1", []Comment{{ID: ""}}); !errors.Is(err, ErrInvalidCommentID) {
		t.Fatalf("expected ErrInvalidCommentID, got %v", err)
	}
}

func TestTreeNestsRepliesInServerOrder(t *testing.T) {
	store := NewStore()
	list := []Comment{
		{ID: "a"},
		{ID: "b"},
		{ID: "a1", ParentID: "a"},
		{ID: "a2", ParentID: "a"},
		{ID: "a1x", ParentID: "a1"},
		{ID: "orphan", ParentID: "deleted"},
	}
	if err := store.Replace("s1", list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	roots := store.Tree("s1")
	if len(roots) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(roots))
	}
	if roots[0].Comment.ID != "a" || roots[1].Comment.ID != "b" || roots[2].Comment.ID != "orphan" {
		t.Fatalf("unexpected root order: %s %s %s", roots[0].Comment.ID, roots[1].Comment.ID, roots[2].Comment.ID)
	}
	replies := roots[0].Replies
	if len(replies) != 2 || replies[0].Comment.ID != "a1" || replies[1].Comment.ID != "a2" {
		t.Fatalf("unexpected replies under a")
	}
	if len(replies[0].Replies) != 1 || replies[0].Replies[0].Comment.ID != "a1x" {
		t.Fatalf("expected nested reply under a1")
	}
}

func TestBuildTreeBreaksParentCycles(t *testing.T) {
	roots := BuildTree([]Comment{
		{ID: "x", ParentID: "y"},
		{ID: "y", ParentID: "x"},
		{ID: "z", ParentID: "z"},
	})
	if len(roots) != 3 {
		t.Fatalf("expected cycle members at the top level, got %d roots", len(roots))
	}
	for _, root := range roots {
		if len(root.Replies) != 0 {
			t.Fatalf("cycle member %s must not carry replies", root.Comment.ID)
		}
	}
}

func TestCommentVoteState(t *testing.T) {
	comment := Comment{ID: "c1", Upvotes: 3, Downvotes: 1, ViewerVote: votes.VoteDown}
	state := comment.VoteState()
	if state.EntityID != "c1" || state.Score() != 2 || state.ViewerVote != votes.VoteDown {
		t.Fatalf("unexpected vote state %+v", state)
	}
}
