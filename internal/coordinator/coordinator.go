package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/tally/internal/api"
	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/metrics"
	"github.com/MarcoPoloResearchLab/tally/internal/session"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const challengeActionComment = "comment"

var (
	errMissingSession     = errors.New("coordinator: session dependency required")
	errMissingVoteStores  = errors.New("coordinator: vote store dependencies required")
	errMissingThreads     = errors.New("coordinator: comment store dependency required")
	errMissingAPI         = errors.New("coordinator: api dependency required")
	errUnknownComment     = errors.New("coordinator: comment not loaded")
	errMismatchedVoteKind = errors.New("coordinator: submission and comment stores must be distinct")
)

// SessionGate is the read side of the session plus the 401 signal.
type SessionGate interface {
	Current() session.Session
	OnUnauthorized()
}

// API is the remote collaborator surface the coordinator drives.
type API interface {
	Submission(ctx context.Context, token, submissionID string) (api.SubmissionDetail, error)
	VoteSubmission(ctx context.Context, token, submissionID string, intent votes.Vote) (votes.Tally, error)
	VoteComment(ctx context.Context, token, commentID string, intent votes.Vote) (votes.Tally, error)
	PostComment(ctx context.Context, token string, request api.CommentRequest) (string, error)
	ListComments(ctx context.Context, token, submissionID, viewer string) ([]comments.Comment, error)
}

// Config describes the dependencies of a Coordinator.
type Config struct {
	Session     SessionGate
	Submissions *votes.Store
	Comments    *votes.Store
	Threads     *comments.Store
	API         API
	Challenge   ChallengeProvider
	Presenter   Presenter
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
}

// Coordinator runs the optimistic-mutate, request, reconcile cycle for votes and comments.
type Coordinator struct {
	session     SessionGate
	submissions *votes.Store
	commentVote *votes.Store
	threads     *comments.Store
	api         API
	challenge   ChallengeProvider
	presenter   Presenter
	metrics     *metrics.Recorder
	logger      *zap.Logger
}

// SubmissionView is the state loaded by OpenSubmission.
type SubmissionView struct {
	Submission feed.Submission
	Votes      votes.State
	Comments   []*comments.Node
}

// New validates cfg and constructs a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.Session == nil:
		return nil, newError(opNew, "missing_session", nil, errMissingSession)
	case cfg.Submissions == nil || cfg.Comments == nil:
		return nil, newError(opNew, "missing_vote_store", nil, errMissingVoteStores)
	case cfg.Submissions == cfg.Comments:
		return nil, newError(opNew, "shared_vote_store", nil, errMismatchedVoteKind)
	case cfg.Threads == nil:
		return nil, newError(opNew, "missing_threads", nil, errMissingThreads)
	case cfg.API == nil:
		return nil, newError(opNew, "missing_api", nil, errMissingAPI)
	}
	challenge := cfg.Challenge
	if challenge == nil {
		challenge = StaticChallenge("")
	}
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = nopPresenter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		session:     cfg.Session,
		submissions: cfg.Submissions,
		commentVote: cfg.Comments,
		threads:     cfg.Threads,
		api:         cfg.API,
		challenge:   challenge,
		presenter:   presenter,
		metrics:     cfg.Metrics,
		logger:      logger,
	}, nil
}

type voteCall func(ctx context.Context, token, entityID string, intent votes.Vote) (votes.Tally, error)

// SubmitVote votes on a submission. Submission state is loaded on demand when it was
// never opened.
func (c *Coordinator) SubmitVote(ctx context.Context, submissionID string, intent votes.Vote) (votes.State, error) {
	if _, known := c.submissions.Get(submissionID); !known && c.session.Current().Authenticated() {
		if _, err := c.loadSubmission(ctx, opSubmitVote, submissionID); err != nil {
			return votes.State{}, err
		}
	}
	return c.vote(ctx, opSubmitVote, c.submissions, submissionID, intent, c.api.VoteSubmission)
}

// VoteComment votes on a loaded comment, then refetches the submission's comment list.
func (c *Coordinator) VoteComment(ctx context.Context, commentID string, intent votes.Vote) (votes.State, error) {
	comment, ok := c.threads.Lookup(commentID)
	if !ok {
		return votes.State{}, newError(opVoteComment, reasonUnknownEntity, votes.ErrUnknownEntity, errUnknownComment)
	}
	state, err := c.vote(ctx, opVoteComment, c.commentVote, commentID, intent, c.api.VoteComment)
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrAlreadyPending) || errors.Is(err, votes.ErrInvalidIntent) {
		return state, err
	}
	if _, refreshErr := c.RefreshComments(ctx, comment.SubmissionID); refreshErr == nil {
		if refreshed, ok := c.commentVote.Get(commentID); ok {
			state = refreshed
		}
	}
	return state, err
}

func (c *Coordinator) vote(ctx context.Context, operation string, store *votes.Store, entityID string, intent votes.Vote, call voteCall) (votes.State, error) {
	snapshot := c.session.Current()
	if !snapshot.Authenticated() {
		c.presenter.RequireLogin("sign in to vote")
		return votes.State{}, newError(operation, reasonUnauthenticated, ErrUnauthenticated, nil)
	}

	previous, err := store.ApplyOptimistic(entityID, intent)
	if err != nil {
		return votes.State{}, c.classifyApplyError(operation, err)
	}
	c.metrics.OptimisticApplied(store.Kind())

	tally, callErr := call(ctx, snapshot.Token, entityID, intent)
	if callErr != nil {
		if _, rollbackErr := store.Rollback(entityID, previous); rollbackErr != nil {
			c.logOutcome(zapcore.ErrorLevel, operation, reasonStoreFailure, rollbackErr)
		}
		return previous, c.failRequest(operation, store.Kind(), callErr)
	}

	if c.session.Current().Epoch != snapshot.Epoch {
		restored, _ := store.Rollback(entityID, previous)
		c.metrics.RolledBack(store.Kind(), reasonSessionChanged)
		c.logOutcome(zapcore.InfoLevel, operation, reasonSessionChanged, nil, zap.String("entity_id", entityID))
		return restored, newError(operation, reasonSessionChanged, ErrSessionChanged, nil)
	}

	confirmed, err := store.Confirm(entityID, tally)
	if err != nil {
		restored, _ := store.Rollback(entityID, previous)
		c.metrics.RolledBack(store.Kind(), reasonNetworkFailure)
		c.logOutcome(zapcore.WarnLevel, operation, reasonNetworkFailure, err, zap.String("entity_id", entityID))
		c.presenter.Notify(Notice{Level: NoticeError, Message: "The vote could not be recorded. Try again."})
		return restored, newError(operation, reasonNetworkFailure, ErrNetworkFailure, err)
	}
	c.metrics.Confirmed(store.Kind())
	return confirmed, nil
}

func (c *Coordinator) classifyApplyError(operation string, err error) error {
	switch {
	case errors.Is(err, votes.ErrUnauthenticated):
		c.presenter.RequireLogin("sign in to vote")
		return newError(operation, reasonUnauthenticated, ErrUnauthenticated, err)
	case errors.Is(err, votes.ErrAlreadyPending):
		c.presenter.Notify(Notice{Level: NoticeInfo, Message: "Your previous vote is still being saved."})
		return newError(operation, reasonAlreadyPending, nil, err)
	case errors.Is(err, votes.ErrUnknownEntity):
		return newError(operation, reasonUnknownEntity, nil, err)
	default:
		return newError(operation, reasonInvalidInput, nil, err)
	}
}

// failRequest decides presentation for a failed round trip and invalidates the session on 401.
func (c *Coordinator) failRequest(operation, kind string, err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		c.session.OnUnauthorized()
		if kind != "" {
			c.metrics.RolledBack(kind, reasonSessionExpired)
		}
		c.logOutcome(zapcore.InfoLevel, operation, reasonSessionExpired, err)
		c.presenter.RequireLogin("your session has expired")
		return newError(operation, reasonSessionExpired, ErrSessionExpired, err)
	}
	if kind != "" {
		c.metrics.RolledBack(kind, reasonNetworkFailure)
	}
	c.logOutcome(zapcore.WarnLevel, operation, reasonNetworkFailure, err)
	c.presenter.Notify(Notice{Level: NoticeError, Message: failureMessage(operation)})
	return newError(operation, reasonNetworkFailure, ErrNetworkFailure, err)
}

// SubmitComment posts a comment, or a reply when parentID is set, then refetches the list.
func (c *Coordinator) SubmitComment(ctx context.Context, submissionID, parentID, text string) (string, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		c.presenter.Notify(Notice{Level: NoticeWarning, Message: "A comment cannot be empty."})
		return "", newError(opSubmitComment, reasonEmptyContent, ErrEmptyComment, nil)
	}
	snapshot := c.session.Current()
	if !snapshot.Authenticated() || snapshot.Identity == "" {
		c.presenter.RequireLogin("sign in to comment")
		return "", newError(opSubmitComment, reasonUnauthenticated, ErrUnauthenticated, nil)
	}

	challengeToken, err := c.challenge.Challenge(ctx, challengeActionComment)
	if err != nil {
		c.logOutcome(zapcore.WarnLevel, opSubmitComment, reasonChallengeFailed, err)
		c.presenter.Notify(Notice{Level: NoticeError, Message: "The anti-abuse check could not be completed."})
		return "", newError(opSubmitComment, reasonChallengeFailed, ErrChallengeFailed, err)
	}

	commentID, err := c.api.PostComment(ctx, snapshot.Token, api.CommentRequest{
		SubmissionID:   submissionID,
		ParentID:       strings.TrimSpace(parentID),
		Content:        content,
		ChallengeToken: challengeToken,
	})
	if err != nil {
		return "", c.failRequest(opSubmitComment, "", err)
	}
	c.presenter.Notify(Notice{Level: NoticeSuccess, Message: "Comment posted."})
	_, _ = c.RefreshComments(ctx, submissionID)
	return commentID, nil
}

// RefreshComments replaces the submission's comment list and comment vote state with
// the server's. Comments with an in-flight vote keep their optimistic state.
func (c *Coordinator) RefreshComments(ctx context.Context, submissionID string) ([]comments.Comment, error) {
	snapshot := c.session.Current()
	list, err := c.api.ListComments(ctx, snapshot.Token, submissionID, snapshot.Identity)
	if err != nil {
		return nil, c.failRequest(opRefreshComments, "", err)
	}
	if c.session.Current().Epoch != snapshot.Epoch {
		c.logOutcome(zapcore.InfoLevel, opRefreshComments, reasonSessionChanged, nil, zap.String("submission_id", submissionID))
		return nil, newError(opRefreshComments, reasonSessionChanged, ErrSessionChanged, nil)
	}
	if err := c.installComments(submissionID, list); err != nil {
		return nil, err
	}
	return c.threads.List(submissionID), nil
}

// OpenSubmission loads a submission's tally, viewer vote and comments concurrently.
func (c *Coordinator) OpenSubmission(ctx context.Context, submissionID string) (SubmissionView, error) {
	snapshot := c.session.Current()
	var (
		detail api.SubmissionDetail
		list   []comments.Comment
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, err := c.api.Submission(groupCtx, snapshot.Token, submissionID)
		detail = loaded
		return err
	})
	group.Go(func() error {
		loaded, err := c.api.ListComments(groupCtx, snapshot.Token, submissionID, snapshot.Identity)
		list = loaded
		return err
	})
	if err := group.Wait(); err != nil {
		return SubmissionView{}, c.failRequest(opOpenSubmission, "", err)
	}
	if c.session.Current().Epoch != snapshot.Epoch {
		return SubmissionView{}, newError(opOpenSubmission, reasonSessionChanged, ErrSessionChanged, nil)
	}

	state := c.seedSubmission(detail)
	if err := c.installComments(submissionID, list); err != nil {
		return SubmissionView{}, err
	}
	return SubmissionView{
		Submission: detail.Submission,
		Votes:      state,
		Comments:   c.threads.Tree(submissionID),
	}, nil
}

// Thread returns the locally held comment tree for a submission.
func (c *Coordinator) Thread(submissionID string) []*comments.Node {
	return c.threads.Tree(submissionID)
}

func (c *Coordinator) loadSubmission(ctx context.Context, operation, submissionID string) (votes.State, error) {
	snapshot := c.session.Current()
	detail, err := c.api.Submission(ctx, snapshot.Token, submissionID)
	if err != nil {
		return votes.State{}, c.failRequest(operation, "", err)
	}
	if c.session.Current().Epoch != snapshot.Epoch {
		return votes.State{}, newError(operation, reasonSessionChanged, ErrSessionChanged, nil)
	}
	return c.seedSubmission(detail), nil
}

func (c *Coordinator) seedSubmission(detail api.SubmissionDetail) votes.State {
	entityID := detail.Submission.ID
	c.submissions.Seed(votes.StateFromTally(entityID, detail.Tally))
	state, _ := c.submissions.Get(entityID)
	return state
}

func (c *Coordinator) installComments(submissionID string, list []comments.Comment) error {
	if err := c.threads.Replace(submissionID, list); err != nil {
		c.logOutcome(zapcore.WarnLevel, opRefreshComments, reasonStoreFailure, err, zap.String("submission_id", submissionID))
		return newError(opRefreshComments, reasonStoreFailure, ErrNetworkFailure, err)
	}
	for _, comment := range c.threads.List(submissionID) {
		c.commentVote.Seed(comment.VoteState())
	}
	return nil
}

func (c *Coordinator) logOutcome(level zapcore.Level, operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	if entry := c.logger.Check(level, "coordinator outcome"); entry != nil {
		entry.Write(attrs...)
	}
}

func failureMessage(operation string) string {
	switch operation {
	case opSubmitVote, opVoteComment:
		return "The vote could not be recorded. Try again."
	case opSubmitComment:
		return "The comment could not be posted. Try again."
	case opOpenSubmission:
		return "The submission could not be loaded."
	default:
		return "The comments could not be loaded."
	}
}
