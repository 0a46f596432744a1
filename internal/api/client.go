package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/ids"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

const (
	pathListing         = "/all"
	pathUserSubmissions = "/userSubmissions"
	pathSubmission      = "/submission"
	pathVote            = "/vote"
	pathCommentVote     = "/commentVote"
	pathComment         = "/comment"
	pathComments        = "/comments"
	headerRequestID     = "X-Request-ID"
	maxErrorBodyBytes   = 4096
	wireSortTop         = "best"
)

var errMissingBaseURL = errors.New("api: base url required")

// Config describes how to reach the API.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Client implements the listing, vote and comment endpoints. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	rawBase := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBase == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// SubmissionDetail is a submission with its authoritative tally.
type SubmissionDetail struct {
	Submission feed.Submission
	Tally      votes.Tally
}

// CommentRequest is the payload for a new comment.
type CommentRequest struct {
	SubmissionID   string
	ParentID       string
	Content        string
	ChallengeToken string
}

// FrontPage returns a feed.Source over the main listing.
func (c *Client) FrontPage() feed.Source {
	return feed.SourceFunc(c.ListSubmissions)
}

// UserPage returns a feed.Source over one user's submissions, newest first.
func (c *Client) UserPage(username string) feed.Source {
	return feed.SourceFunc(func(ctx context.Context, request feed.PageRequest) ([]feed.Submission, error) {
		return c.ListUserSubmissions(ctx, username, request)
	})
}

// ListSubmissions fetches one page of the main listing.
func (c *Client) ListSubmissions(ctx context.Context, request feed.PageRequest) ([]feed.Submission, error) {
	query := url.Values{}
	query.Set("sort", wireSortKey(request.SortKey))
	query.Set("offset", strconv.Itoa(request.Offset))
	return c.fetchListing(ctx, pathListing, query)
}

// ListUserSubmissions fetches one page of a user's submissions.
func (c *Client) ListUserSubmissions(ctx context.Context, username string, request feed.PageRequest) ([]feed.Submission, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("offset", strconv.Itoa(request.Offset))
	return c.fetchListing(ctx, pathUserSubmissions, query)
}

func (c *Client) fetchListing(ctx context.Context, path string, query url.Values) ([]feed.Submission, error) {
	var response listingResponsePayload
	if err := c.do(ctx, http.MethodGet, path, query, "", nil, &response); err != nil {
		return nil, err
	}
	items := make([]feed.Submission, 0, len(response.Results))
	for _, payload := range response.Results {
		items = append(items, payload.toSubmission())
	}
	return items, nil
}

// Submission fetches a submission's metadata and tally. With a token the viewer's own
// vote is fetched as well.
func (c *Client) Submission(ctx context.Context, token, submissionID string) (SubmissionDetail, error) {
	query := url.Values{}
	query.Set("id", submissionID)

	var response submissionResponsePayload
	if err := c.do(ctx, http.MethodGet, pathSubmission, query, "", nil, &response); err != nil {
		return SubmissionDetail{}, err
	}
	detail := SubmissionDetail{
		Submission: feed.Submission{
			ID:        response.ID,
			Title:     response.Metadata.Title,
			Author:    response.Metadata.Author,
			Link:      response.Metadata.Link,
			Body:      response.Metadata.Body,
			Flagged:   response.Metadata.IsFlagged,
			CreatedAt: parseTimestamp(response.Metadata.CreatedAt),
			Upvotes:   response.Votes.Upvotes,
			Downvotes: response.Votes.Downvotes,
		},
		Tally: votes.Tally{
			Upvotes:   response.Votes.Upvotes,
			Downvotes: response.Votes.Downvotes,
		},
	}
	if detail.Submission.ID == "" {
		detail.Submission.ID = submissionID
	}
	if token == "" {
		return detail, nil
	}

	var viewer viewerVoteResponsePayload
	if err := c.do(ctx, http.MethodGet, pathVote, query, token, nil, &viewer); err != nil {
		return SubmissionDetail{}, err
	}
	if viewer.DidVote {
		detail.Tally.ViewerVote = votes.FromFlags(viewer.DidUpvote, !viewer.DidUpvote)
	}
	return detail, nil
}

// VoteSubmission records a vote on a submission and returns the server tally.
func (c *Client) VoteSubmission(ctx context.Context, token, submissionID string, intent votes.Vote) (votes.Tally, error) {
	return c.vote(ctx, pathVote, token, submissionID, intent)
}

// VoteComment records a vote on a comment and returns the server tally.
func (c *Client) VoteComment(ctx context.Context, token, commentID string, intent votes.Vote) (votes.Tally, error) {
	return c.vote(ctx, pathCommentVote, token, commentID, intent)
}

func (c *Client) vote(ctx context.Context, path, token, entityID string, intent votes.Vote) (votes.Tally, error) {
	if !intent.IsIntent() {
		return votes.Tally{}, fmt.Errorf("%w: %s", votes.ErrInvalidIntent, intent)
	}
	request := voteRequestPayload{ID: entityID, Upvote: intent == votes.VoteUp}
	var response tallyResponsePayload
	if err := c.do(ctx, http.MethodPost, path, nil, token, request, &response); err != nil {
		return votes.Tally{}, err
	}
	tally, err := response.toTally()
	if err != nil {
		return votes.Tally{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return tally, nil
}

// PostComment creates a comment and returns its server-assigned identifier.
func (c *Client) PostComment(ctx context.Context, token string, request CommentRequest) (string, error) {
	var query url.Values
	if request.ParentID != "" {
		query = url.Values{}
		query.Set("parent", request.ParentID)
	}
	payload := commentRequestPayload{
		InResponseTo: request.SubmissionID,
		Content:      request.Content,
		CaptchaToken: request.ChallengeToken,
	}
	var response commentResponsePayload
	if err := c.do(ctx, http.MethodPost, pathComment, query, token, payload, &response); err != nil {
		return "", err
	}
	if !response.Success || response.CommentID == "" {
		return "", fmt.Errorf("%w: comment not created", ErrUnexpectedResponse)
	}
	return response.CommentID, nil
}

// ListComments fetches the full comment list with the viewer's vote flags.
func (c *Client) ListComments(ctx context.Context, token, submissionID, viewer string) ([]comments.Comment, error) {
	query := url.Values{}
	query.Set("id", submissionID)
	query.Set("username", viewer)

	var response commentListResponsePayload
	if err := c.do(ctx, http.MethodGet, pathComments, query, token, nil, &response); err != nil {
		return nil, err
	}
	list := make([]comments.Comment, 0, len(response.Comments))
	for _, payload := range response.Comments {
		comment := payload.toComment()
		if comment.SubmissionID == "" {
			comment.SubmissionID = submissionID
		}
		list = append(list, comment)
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body any, out any) error {
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	requestID, idErr := c.idProvider.NewID()
	if idErr == nil {
		request.Header.Set(headerRequestID, requestID)
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	c.logger.Debug("api request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", response.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(started)))

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: response.StatusCode,
			Message:    readErrorMessage(response.Body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrUnexpectedResponse, method, path, err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload errorResponsePayload
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if message, ok := payload.Error.(string); ok {
			return message
		}
	}
	return strings.TrimSpace(string(raw))
}

func wireSortKey(key feed.SortKey) string {
	if key == feed.SortTop {
		return wireSortTop
	}
	if key == "" {
		return string(feed.SortLatest)
	}
	return string(key)
}
