package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var errMissingSource = errors.New("feed: source dependency required")

// Source fetches one page of a listing.
type Source interface {
	FetchPage(ctx context.Context, request PageRequest) ([]Submission, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, request PageRequest) ([]Submission, error)

// FetchPage calls f.
func (f SourceFunc) FetchPage(ctx context.Context, request PageRequest) ([]Submission, error) {
	return f(ctx, request)
}

// CursorConfig describes the dependencies of a Cursor.
type CursorConfig struct {
	Source  Source
	SortKey SortKey
	// OnLoad observes every applied page.
	OnLoad func(Page)
	// OnStale observes every discarded response.
	OnStale func(PageRequest)
	Logger  *zap.Logger
}

// Cursor tracks pagination and sort state for one listing. Every trigger stamps a new
// generation; a response is applied only if its generation is still current.
type Cursor struct {
	mu         sync.Mutex
	source     Source
	sortKey    SortKey
	offset     int
	items      []Submission
	status     Status
	atEnd      bool
	generation uint64
	lastErr    error
	onLoad     func(Page)
	onStale    func(PageRequest)
	logger     *zap.Logger
}

// NewCursor constructs an idle cursor at offset 0.
func NewCursor(cfg CursorConfig) (*Cursor, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	sortKey := cfg.SortKey
	if sortKey == "" {
		sortKey = SortLatest
	}
	if _, err := ParseSortKey(string(sortKey)); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cursor{
		source:  cfg.Source,
		sortKey: sortKey,
		status:  StatusIdle,
		onLoad:  cfg.OnLoad,
		onStale: cfg.OnStale,
		logger:  logger,
	}, nil
}

// Snapshot returns the current page view.
func (c *Cursor) Snapshot() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Refresh fetches the current sort and offset again.
func (c *Cursor) Refresh(ctx context.Context) error {
	c.mu.Lock()
	request, generation := c.beginLocked(c.sortKey, c.offset)
	c.mu.Unlock()
	return c.fetch(ctx, request, generation)
}

// Advance moves one page forward. It returns ErrAtEnd without fetching when the last
// loaded page was short.
func (c *Cursor) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.atEnd {
		c.mu.Unlock()
		return ErrAtEnd
	}
	request, generation := c.beginLocked(c.sortKey, c.offset+PageSize)
	c.mu.Unlock()
	return c.fetch(ctx, request, generation)
}

// Retreat moves one page back. At offset 0 it is a no-op and issues no fetch.
func (c *Cursor) Retreat(ctx context.Context) error {
	c.mu.Lock()
	if c.offset == 0 {
		c.mu.Unlock()
		return nil
	}
	target := c.offset - PageSize
	if target < 0 {
		target = 0
	}
	request, generation := c.beginLocked(c.sortKey, target)
	c.mu.Unlock()
	return c.fetch(ctx, request, generation)
}

// SetSort switches ordering and always restarts at offset 0.
func (c *Cursor) SetSort(ctx context.Context, key SortKey) error {
	parsed, err := ParseSortKey(string(key))
	if err != nil {
		return err
	}
	c.mu.Lock()
	request, generation := c.beginLocked(parsed, 0)
	c.mu.Unlock()
	return c.fetch(ctx, request, generation)
}

func (c *Cursor) beginLocked(sortKey SortKey, offset int) (PageRequest, uint64) {
	c.generation++
	c.sortKey = sortKey
	c.offset = offset
	c.atEnd = false
	c.status = StatusLoading
	c.lastErr = nil
	return PageRequest{SortKey: sortKey, Offset: offset, PageSize: PageSize}, c.generation
}

func (c *Cursor) fetch(ctx context.Context, request PageRequest, generation uint64) error {
	items, err := c.source.FetchPage(ctx, request)
	if err != nil {
		return c.fail(request, generation, err)
	}
	return c.load(request, generation, items)
}

// load replaces items wholesale; pages never accumulate.
func (c *Cursor) load(request PageRequest, generation uint64, items []Submission) error {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.discard(request, generation)
		return nil
	}
	c.items = append([]Submission(nil), items...)
	c.atEnd = len(items) < PageSize
	c.status = StatusLoaded
	c.lastErr = nil
	page := c.snapshotLocked()
	c.mu.Unlock()

	if c.onLoad != nil {
		c.onLoad(page)
	}
	return nil
}

func (c *Cursor) fail(request PageRequest, generation uint64, cause error) error {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		c.discard(request, generation)
		return nil
	}
	err := fmt.Errorf("feed: fetch %s offset %d: %w", request.SortKey, request.Offset, cause)
	c.status = StatusErrored
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("feed page fetch failed",
		zap.String("sort", string(request.SortKey)),
		zap.Int("offset", request.Offset),
		zap.Error(cause))
	return err
}

func (c *Cursor) discard(request PageRequest, generation uint64) {
	c.logger.Debug("stale feed response discarded",
		zap.String("sort", string(request.SortKey)),
		zap.Int("offset", request.Offset),
		zap.Uint64("generation", generation))
	if c.onStale != nil {
		c.onStale(request)
	}
}

func (c *Cursor) snapshotLocked() Page {
	return Page{
		SortKey:    c.sortKey,
		Offset:     c.offset,
		Items:      append([]Submission(nil), c.items...),
		Status:     c.status,
		AtEnd:      c.atEnd,
		Generation: c.generation,
		Err:        c.lastErr,
	}
}
