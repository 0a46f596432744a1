package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/tally/internal/feed"
)

func pageOf(count int) []feed.Submission {
	items := make([]feed.Submission, count)
	for index := range items {
		items[index] = feed.Submission{ID: string(rune('a' + index))}
	}
	return items
}

func TestFeedPresentsEndOfFeed(t *testing.T) {
	h := newHarness(t, "")
	var loaded []feed.Page
	source := feed.SourceFunc(func(_ context.Context, request feed.PageRequest) ([]feed.Submission, error) {
		return pageOf(7), nil
	})
	listing, err := h.coordinator.OpenFeed(source, feed.SortLatest, func(page feed.Page) {
		loaded = append(loaded, page)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := listing.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := listing.Advance(context.Background()); !errors.Is(err, feed.ErrAtEnd) {
		t.Fatalf("expected ErrAtEnd, got %v", err)
	}
	if len(loaded) != 1 || !loaded[0].AtEnd {
		t.Fatalf("expected one short page, got %+v", loaded)
	}
	if levels := h.presenter.levels(); len(levels) != 1 || levels[0] != NoticeInfo {
		t.Fatalf("expected end-of-feed notice, got %v", levels)
	}
	if got := counterValue(t, h.metrics, "tally_feed_pages_loaded_total", map[string]string{"sort": "latest"}); got != 1 {
		t.Fatalf("expected one page load, got %v", got)
	}
}

func TestFeedCountsStaleResponses(t *testing.T) {
	h := newHarness(t, "")
	var listing *Feed
	source := feed.SourceFunc(func(ctx context.Context, request feed.PageRequest) ([]feed.Submission, error) {
		if request.SortKey == feed.SortTop {
			if err := listing.SetSort(ctx, feed.SortLatest); err != nil {
				t.Errorf("nested sort: %v", err)
			}
		}
		return pageOf(feed.PageSize), nil
	})
	var err error
	listing, err = h.coordinator.OpenFeed(source, feed.SortLatest, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := listing.SetSort(context.Background(), feed.SortTop); err != nil {
		t.Fatalf("stale responses are not errors, got %v", err)
	}
	if snapshot := listing.Snapshot(); snapshot.SortKey != feed.SortLatest || snapshot.Status != feed.StatusLoaded {
		t.Fatalf("expected latest to win, got %+v", snapshot)
	}
	if got := counterValue(t, h.metrics, "tally_feed_stale_responses_total", map[string]string{"sort": "top"}); got != 1 {
		t.Fatalf("expected one stale drop, got %v", got)
	}
}

func TestFeedFailureIsNetworkFailure(t *testing.T) {
	h := newHarness(t, "")
	source := feed.SourceFunc(func(context.Context, feed.PageRequest) ([]feed.Submission, error) {
		return nil, errors.New("dial tcp: refused")
	})
	listing, err := h.coordinator.OpenFeed(source, feed.SortTop, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := listing.Refresh(context.Background()); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if snapshot := listing.Snapshot(); snapshot.Status != feed.StatusErrored {
		t.Fatalf("expected errored state, got %s", snapshot.Status)
	}
	if _, err := h.coordinator.OpenFeed(source, feed.SortKey("sideways"), nil); !errors.Is(err, feed.ErrInvalidSortKey) {
		t.Fatalf("expected invalid sort, got %v", err)
	}
}
