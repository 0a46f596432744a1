package coordinator

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"go.uber.org/zap/zapcore"
)

// Feed drives a feed.Cursor and decides how its failures are presented.
type Feed struct {
	cursor      *feed.Cursor
	coordinator *Coordinator
}

// OpenFeed builds a cursor over source. onLoad, when set, observes every applied page.
func (c *Coordinator) OpenFeed(source feed.Source, sortKey feed.SortKey, onLoad func(feed.Page)) (*Feed, error) {
	cursor, err := feed.NewCursor(feed.CursorConfig{
		Source:  source,
		SortKey: sortKey,
		OnLoad: func(page feed.Page) {
			c.metrics.PageLoaded(string(page.SortKey))
			if onLoad != nil {
				onLoad(page)
			}
		},
		OnStale: func(request feed.PageRequest) {
			c.metrics.StaleDropped(string(request.SortKey))
		},
		Logger: c.logger,
	})
	if err != nil {
		return nil, newError(opFeed, reasonInvalidInput, nil, err)
	}
	return &Feed{cursor: cursor, coordinator: c}, nil
}

// Snapshot returns the current page view.
func (f *Feed) Snapshot() feed.Page {
	return f.cursor.Snapshot()
}

// Refresh loads the current page.
func (f *Feed) Refresh(ctx context.Context) error {
	return f.present(f.cursor.Refresh(ctx))
}

// Advance moves one page forward; at the end of the feed it returns feed.ErrAtEnd.
func (f *Feed) Advance(ctx context.Context) error {
	return f.present(f.cursor.Advance(ctx))
}

// Retreat moves one page back; at offset 0 it does nothing.
func (f *Feed) Retreat(ctx context.Context) error {
	return f.present(f.cursor.Retreat(ctx))
}

// SetSort restarts the feed at offset 0 under key.
func (f *Feed) SetSort(ctx context.Context, key feed.SortKey) error {
	return f.present(f.cursor.SetSort(ctx, key))
}

func (f *Feed) present(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, feed.ErrAtEnd):
		f.coordinator.presenter.Notify(Notice{Level: NoticeInfo, Message: "You have reached the end of the feed."})
		return err
	case errors.Is(err, feed.ErrInvalidSortKey):
		return newError(opFeed, reasonInvalidInput, nil, err)
	default:
		f.coordinator.logOutcome(zapcore.DebugLevel, opFeed, reasonNetworkFailure, err)
		f.coordinator.presenter.Notify(Notice{Level: NoticeError, Message: "The feed could not be loaded."})
		return newError(opFeed, reasonNetworkFailure, ErrNetworkFailure, err)
	}
}
