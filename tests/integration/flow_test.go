package integration_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/api"
	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/coordinator"
	"github.com/MarcoPoloResearchLab/tally/internal/credentials"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/ids"
	"github.com/MarcoPoloResearchLab/tally/internal/metrics"
	"github.com/MarcoPoloResearchLab/tally/internal/session"
	"github.com/MarcoPoloResearchLab/tally/internal/stubapi"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

const (
	stubSigningSecret = "integration-secret"
	stubIssuer        = "tally-stub"
	seededPosts       = 15
)

type recordingPresenter struct {
	notices []coordinator.Notice
	logins  []string
}

func (p *recordingPresenter) Notify(notice coordinator.Notice) { p.notices = append(p.notices, notice) }
func (p *recordingPresenter) RequireLogin(reason string)      { p.logins = append(p.logins, reason) }

type flowHarness struct {
	board       *stubapi.Board
	issuer      *stubapi.TokenIssuer
	credentials *credentials.Store
	gate        *session.Gate
	client      *api.Client
	coordinator *coordinator.Coordinator
	presenter   *recordingPresenter
	recorder    *metrics.Recorder
}

func newFlowHarness(testContext *testing.T) *flowHarness {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	board := stubapi.NewBoard(stubapi.BoardConfig{IDProvider: &ids.Sequence{Prefix: "comment-"}})
	if err := stubapi.SeedDemo(board, seededPosts, time.Now().UTC()); err != nil {
		testContext.Fatalf("failed to seed board: %v", err)
	}
	issuer, err := stubapi.NewTokenIssuer(stubapi.TokenIssuerConfig{SigningSecret: []byte(stubSigningSecret), Issuer: stubIssuer})
	if err != nil {
		testContext.Fatalf("failed to build issuer: %v", err)
	}
	handler, err := stubapi.NewHTTPHandler(stubapi.Dependencies{Board: board, Tokens: issuer, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)

	db, err := credentials.OpenSQLite("file:"+testContext.Name()+"?mode=memory&cache=shared", zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	testContext.Cleanup(func() { sqlDB.Close() })

	credentialStore, err := credentials.NewStore(credentials.StoreConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build credential store: %v", err)
	}
	gate := session.NewGate(session.GateConfig{Source: credentialStore})

	client, err := api.NewClient(api.Config{BaseURL: testServer.URL + stubapi.BasePath})
	if err != nil {
		testContext.Fatalf("failed to build client: %v", err)
	}

	submissionVotes, err := votes.NewStore(votes.StoreConfig{Session: gate, Kind: "submission"})
	if err != nil {
		testContext.Fatalf("failed to build submission store: %v", err)
	}
	commentVotes, err := votes.NewStore(votes.StoreConfig{Session: gate, Kind: "comment"})
	if err != nil {
		testContext.Fatalf("failed to build comment store: %v", err)
	}
	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		testContext.Fatalf("failed to build recorder: %v", err)
	}
	presenter := &recordingPresenter{}
	coord, err := coordinator.New(coordinator.Config{
		Session:     gate,
		Submissions: submissionVotes,
		Comments:    commentVotes,
		Threads:     comments.NewStore(),
		API:         client,
		Challenge:   coordinator.StaticChallenge("integration"),
		Presenter:   presenter,
		Metrics:     recorder,
	})
	if err != nil {
		testContext.Fatalf("failed to build coordinator: %v", err)
	}

	return &flowHarness{
		board:       board,
		issuer:      issuer,
		credentials: credentialStore,
		gate:        gate,
		client:      client,
		coordinator: coord,
		presenter:   presenter,
		recorder:    recorder,
	}
}

// signIn persists a token and reloads the gate the way a fresh process would.
func (h *flowHarness) signIn(testContext *testing.T, token, username string) {
	testContext.Helper()
	if err := h.credentials.Save(context.Background(), token, username); err != nil {
		testContext.Fatalf("failed to save credential: %v", err)
	}
	if current := h.gate.Reload(); !current.Authenticated() {
		testContext.Fatalf("expected gate to pick up the stored token")
	}
}

func (h *flowHarness) mustIssue(testContext *testing.T, username string) string {
	testContext.Helper()
	token, _, err := h.issuer.Issue(username)
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func TestVoteSwitchAgainstStubAPI(testContext *testing.T) {
	harness := newFlowHarness(testContext)
	harness.signIn(testContext, harness.mustIssue(testContext, "ada"), "ada")
	ctx := context.Background()

	view, err := harness.coordinator.OpenSubmission(ctx, "post-03")
	if err != nil {
		testContext.Fatalf("open submission failed: %v", err)
	}
	if view.Votes.Upvotes != 0 || view.Votes.ViewerVote != votes.VoteNone {
		testContext.Fatalf("unexpected initial state %+v", view.Votes)
	}

	upvoted, err := harness.coordinator.SubmitVote(ctx, "post-03", votes.VoteUp)
	if err != nil {
		testContext.Fatalf("upvote failed: %v", err)
	}
	if upvoted.Upvotes != 1 || upvoted.ViewerVote != votes.VoteUp || upvoted.HasPending() {
		testContext.Fatalf("unexpected upvote state %+v", upvoted)
	}

	switched, err := harness.coordinator.SubmitVote(ctx, "post-03", votes.VoteDown)
	if err != nil {
		testContext.Fatalf("switch failed: %v", err)
	}
	if switched.Upvotes != 0 || switched.Downvotes != 1 || switched.ViewerVote != votes.VoteDown {
		testContext.Fatalf("expected a two-count swing, got %+v", switched)
	}

	_, counts, err := harness.board.Submission("post-03", "ada")
	if err != nil {
		testContext.Fatalf("board lookup failed: %v", err)
	}
	if counts.Upvotes != 0 || counts.Downvotes != 1 || counts.ViewerVote != "down" {
		testContext.Fatalf("server disagrees with client: %+v", counts)
	}
}

func TestRejectedTokenRollsBackAndPurgesCredential(testContext *testing.T) {
	harness := newFlowHarness(testContext)
	forger, err := stubapi.NewTokenIssuer(stubapi.TokenIssuerConfig{SigningSecret: []byte("wrong-secret"), Issuer: stubIssuer})
	if err != nil {
		testContext.Fatalf("failed to build forger: %v", err)
	}
	forged, _, err := forger.Issue("mallory")
	if err != nil {
		testContext.Fatalf("failed to forge token: %v", err)
	}

	events, cleanup := harness.gate.Subscribe(context.Background())
	purged := make(chan struct{})
	go func() {
		defer close(purged)
		harness.credentials.ForgetOnInvalidation(context.Background(), events)
	}()

	harness.signIn(testContext, forged, "mallory")
	_, err = harness.coordinator.SubmitVote(context.Background(), "post-01", votes.VoteUp)
	if !errors.Is(err, coordinator.ErrSessionExpired) {
		testContext.Fatalf("expected session expired, got %v", err)
	}
	if harness.gate.Authenticated() {
		testContext.Fatalf("expected gate to be signed out after 401")
	}
	if len(harness.presenter.logins) != 1 {
		testContext.Fatalf("expected one login prompt, got %v", harness.presenter.logins)
	}

	cleanup()
	<-purged
	if _, found, err := harness.credentials.Load(context.Background()); err != nil || found {
		testContext.Fatalf("expected stored credential to be removed, found=%v err=%v", found, err)
	}
}

func TestCommentThreadConvergesOnServerState(testContext *testing.T) {
	harness := newFlowHarness(testContext)
	harness.signIn(testContext, harness.mustIssue(testContext, "grace"), "grace")
	ctx := context.Background()

	rootID, err := harness.coordinator.SubmitComment(ctx, "post-05", "", "first!")
	if err != nil {
		testContext.Fatalf("comment failed: %v", err)
	}
	if _, err := harness.coordinator.SubmitComment(ctx, "post-05", rootID, "a reply"); err != nil {
		testContext.Fatalf("reply failed: %v", err)
	}

	thread := harness.coordinator.Thread("post-05")
	if len(thread) != 1 || len(thread[0].Replies) != 1 || thread[0].Replies[0].Comment.Content != "a reply" {
		testContext.Fatalf("unexpected thread shape %+v", thread)
	}

	state, err := harness.coordinator.VoteComment(ctx, rootID, votes.VoteUp)
	if err != nil {
		testContext.Fatalf("comment vote failed: %v", err)
	}
	if state.Upvotes != 1 || state.ViewerVote != votes.VoteUp || state.HasPending() {
		testContext.Fatalf("unexpected comment vote state %+v", state)
	}
	confirmed, err := testutil.GatherAndCount(harness.recorder.Registry(), "tally_votes_confirms_total")
	if err != nil {
		testContext.Fatalf("failed to gather metrics: %v", err)
	}
	if confirmed != 1 {
		testContext.Fatalf("expected one confirmed series, got %d", confirmed)
	}
}

func TestFeedPaginatesToEnd(testContext *testing.T) {
	harness := newFlowHarness(testContext)
	ctx := context.Background()

	var loaded []feed.Page
	listing, err := harness.coordinator.OpenFeed(harness.client.FrontPage(), feed.SortOldest, func(page feed.Page) {
		loaded = append(loaded, page)
	})
	if err != nil {
		testContext.Fatalf("open feed failed: %v", err)
	}
	if err := listing.Refresh(ctx); err != nil {
		testContext.Fatalf("refresh failed: %v", err)
	}
	first := listing.Snapshot()
	if len(first.Items) != feed.PageSize || first.AtEnd || first.Items[0].ID != "post-01" {
		testContext.Fatalf("unexpected first page %+v", first)
	}

	if err := listing.Advance(ctx); err != nil {
		testContext.Fatalf("advance failed: %v", err)
	}
	second := listing.Snapshot()
	if second.Number() != 2 || len(second.Items) != seededPosts-feed.PageSize || !second.AtEnd {
		testContext.Fatalf("unexpected second page %+v", second)
	}

	if err := listing.Advance(ctx); !errors.Is(err, feed.ErrAtEnd) {
		testContext.Fatalf("expected end of feed, got %v", err)
	}
	if len(loaded) != 2 {
		testContext.Fatalf("expected two loaded pages, got %d", len(loaded))
	}
}
