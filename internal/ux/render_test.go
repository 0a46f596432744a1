package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/coordinator"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
)

func TestFeedRendersRanksFromOffset(t *testing.T) {
	page := feed.Page{
		SortKey: feed.SortTop,
		Offset:  10,
		Status:  feed.StatusLoaded,
		AtEnd:   true,
		Items: []feed.Submission{
			{ID: "s11", Title: "Eleventh", Author: "ada", Upvotes: 4, Downvotes: 1, CreatedAt: time.Now().Add(-2 * time.Hour)},
			{ID: "s12", Title: "Twelfth", Author: "grace", Flagged: true},
		},
	}
	output := Feed(page)
	for _, want := range []string{"top · page 2", "11.", "+3", "Eleventh", "by ada · 2h ago", "12.", flaggedPlacement, "end of feed"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFeedRendersErroredPage(t *testing.T) {
	output := Feed(feed.Page{SortKey: feed.SortLatest, Status: feed.StatusErrored})
	if !strings.Contains(output, "could not load") {
		t.Fatalf("expected error line, got:\n%s", output)
	}
}

func TestVoteLineShowsPendingAndViewerVote(t *testing.T) {
	line := VoteLine(votes.State{EntityID: "s1", Upvotes: 6, Downvotes: 2, ViewerVote: votes.VoteUp, Pending: votes.VoteUp})
	for _, want := range []string{"+4", "6 up / 2 down", "you voted up", "saving"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestSubmissionRendersNestedThread(t *testing.T) {
	roots := comments.BuildTree([]comments.Comment{
		{ID: "c1", Author: "ada", Content: "top level", Upvotes: 2},
		{ID: "c2", ParentID: "c1", Author: "grace", Content: "a reply", ViewerVote: votes.VoteDown},
	})
	output := Submission(coordinator.SubmissionView{
		Submission: feed.Submission{ID: "s1", Title: "Hello", Author: "linus", Body: "body text"},
		Votes:      votes.State{EntityID: "s1", Upvotes: 1},
		Comments:   roots,
	})
	for _, want := range []string{"Hello", "body text", "ada", "  top level", "    a reply", "(down)"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestThreadWithoutComments(t *testing.T) {
	if output := Thread(nil); !strings.Contains(output, "no comments yet") {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestPresenterWritesNotices(t *testing.T) {
	var buffer bytes.Buffer
	presenter := NewPresenter(&buffer)
	presenter.Notify(coordinator.Notice{Level: coordinator.NoticeError, Message: "The vote could not be recorded."})
	presenter.RequireLogin("your session has expired")

	output := buffer.String()
	if !strings.Contains(output, "✗ The vote could not be recorded.") {
		t.Fatalf("expected error notice, got %q", output)
	}
	if !strings.Contains(output, "your session has expired") || !presenter.LoginRequired() {
		t.Fatalf("expected login prompt, got %q", output)
	}
}
