package stubapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

const usernameContextKey = "tally_username"

var (
	errMissingBoard         = errors.New("stubapi: board dependency required")
	errMissingTokenManager  = errors.New("stubapi: token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves a bearer token to a username.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Dependencies wires the stub API handler.
type Dependencies struct {
	Board  *Board
	Tokens TokenValidator
	// ChallengeVerifier accepts or rejects a comment's anti-abuse token. Nil accepts any non-empty token.
	ChallengeVerifier func(token string) bool
	// Registry receives request metrics and backs /metrics. Nil disables both.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router serving the stub API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Board == nil {
		return nil, errMissingBoard
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	verifier := deps.ChallengeVerifier
	if verifier == nil {
		verifier = func(token string) bool { return strings.TrimSpace(token) != "" }
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		board:     deps.Board,
		tokens:    deps.Tokens,
		challenge: verifier,
		logger:    logger,
	}

	if deps.Registry != nil {
		requests := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tally",
			Subsystem: "stubapi",
			Name:      "requests_total",
			Help:      "Requests served by the stub API by route and status.",
		}, []string{"route", "status"})
		if err := deps.Registry.Register(requests); err != nil {
			return nil, err
		}
		router.Use(func(c *gin.Context) {
			c.Next()
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		})
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group(BasePath)
	api.GET("/all", handler.handleListing)
	api.GET("/userSubmissions", handler.handleUserSubmissions)
	api.GET("/submission", handler.handleSubmission)
	api.GET("/comments", handler.handleComments)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/vote", handler.handleViewerVote)
	protected.POST("/vote", handler.handleSubmissionVote)
	protected.POST("/commentVote", handler.handleCommentVote)
	protected.POST("/comment", handler.handleComment)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	board     *Board
	tokens    TokenValidator
	challenge func(token string) bool
	logger    *zap.Logger
}

type submissionRowPayload struct {
	ID        string `json:"Id"`
	Title     string `json:"Title"`
	Username  string `json:"Username"`
	Link      string `json:"Link"`
	Body      string `json:"Body"`
	Flagged   bool   `json:"Flagged"`
	CreatedAt string `json:"Created_at"`
	Upvotes   int    `json:"Upvotes"`
	Downvotes int    `json:"Downvotes"`
}

type listingPayload struct {
	Results []submissionRowPayload `json:"results"`
	Next    *string                `json:"next"`
}

type votePayload struct {
	ID     string `json:"Id"`
	Upvote bool   `json:"Upvote"`
}

type tallyPayload struct {
	ID         string `json:"id"`
	Upvotes    int    `json:"upvotes"`
	Downvotes  int    `json:"downvotes"`
	ViewerVote string `json:"viewerVote"`
}

type commentCreatePayload struct {
	InResponseTo string `json:"InResponseTo"`
	Content      string `json:"Content"`
	CaptchaToken string `json:"CaptchaToken"`
}

type commentRowPayload struct {
	ID            string `json:"Id"`
	InResponseTo  string `json:"InResponseTo"`
	Content       string `json:"Content"`
	Author        string `json:"Author"`
	ParentComment string `json:"ParentComment"`
	Flagged       bool   `json:"Flagged"`
	CreatedAt     string `json:"CreatedAt"`
	Upvotes       int    `json:"Upvotes"`
	Downvotes     int    `json:"Downvotes"`
	HasUpvoted    bool   `json:"HasUpvoted"`
	HasDownvoted  bool   `json:"HasDownvoted"`
}

func (h *httpHandler) handleListing(c *gin.Context) {
	offset, ok := parseOffset(c)
	if !ok {
		return
	}
	sortKey := c.DefaultQuery("sort", "latest")
	rows, err := h.board.List(sortKey, offset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "sort must be latest, best or oldest"})
		return
	}
	c.JSON(http.StatusOK, listing(rows, offset))
}

func (h *httpHandler) handleUserSubmissions(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please pass a username parameter"})
		return
	}
	offset, ok := parseOffset(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, listing(h.board.UserSubmissions(username, offset), offset))
}

func (h *httpHandler) handleSubmission(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please pass an id parameter"})
		return
	}
	row, counts, err := h.board.Submission(id, "")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "submission not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": row.ID,
		"metadata": gin.H{
			"title":     row.Title,
			"link":      row.Link,
			"body":      row.Body,
			"author":    row.Author,
			"isFlagged": row.Flagged,
			"createdAt": formatTime(row.CreatedAt),
		},
		"votes": gin.H{
			"upvotes":   counts.Upvotes,
			"downvotes": counts.Downvotes,
			"total":     counts.Upvotes - counts.Downvotes,
		},
	})
}

func (h *httpHandler) handleViewerVote(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please pass an id parameter"})
		return
	}
	_, counts, err := h.board.Submission(id, c.GetString(usernameContextKey))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "submission not found"})
		return
	}
	if counts.ViewerVote == "none" {
		c.JSON(http.StatusOK, gin.H{"didVote": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"didVote": true, "didUpvote": counts.ViewerVote == "up"})
}

func (h *httpHandler) handleSubmissionVote(c *gin.Context) {
	h.handleVote(c, h.board.VoteSubmission)
}

func (h *httpHandler) handleCommentVote(c *gin.Context) {
	h.handleVote(c, h.board.VoteComment)
}

func (h *httpHandler) handleVote(c *gin.Context, record func(viewer, id string, upvote bool) (Counts, error)) {
	var request votePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse JSON"})
		return
	}
	request.ID = strings.TrimSpace(request.ID)
	if request.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing valid id parameter"})
		return
	}
	counts, err := record(c.GetString(usernameContextKey), request.ID, request.Upvote)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tallyPayload{
		ID:         request.ID,
		Upvotes:    counts.Upvotes,
		Downvotes:  counts.Downvotes,
		ViewerVote: counts.ViewerVote,
	})
}

func (h *httpHandler) handleComment(c *gin.Context) {
	var request commentCreatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot parse JSON"})
		return
	}
	if !h.challenge(request.CaptchaToken) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "captcha failed"})
		return
	}
	author := c.GetString(usernameContextKey)
	commentID, err := h.board.AddComment(author, strings.TrimSpace(request.InResponseTo), strings.TrimSpace(c.Query("parent")), request.Content)
	switch {
	case errors.Is(err, errUnknownSubmission), errors.Is(err, errUnknownParent):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	h.logger.Debug("comment created", zap.String("comment_id", commentID), zap.String("author", author))
	c.JSON(http.StatusOK, gin.H{"success": true, "commentID": commentID})
}

func (h *httpHandler) handleComments(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please pass an id parameter"})
		return
	}
	viewer := strings.TrimSpace(c.Query("username"))
	rows, err := h.board.Comments(id, viewer)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "submission not found"})
		return
	}
	payload := make([]commentRowPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, commentRowPayload{
			ID:            row.ID,
			InResponseTo:  row.SubmissionID,
			Content:       row.Content,
			Author:        row.Author,
			ParentComment: row.ParentID,
			Flagged:       row.Flagged,
			CreatedAt:     formatTime(row.CreatedAt),
			Upvotes:       row.Upvotes,
			Downvotes:     row.Downvotes,
			HasUpvoted:    row.ViewerVote == "up",
			HasDownvoted:  row.ViewerVote == "down",
		})
	}
	response := gin.H{"comments": payload}
	if viewer == "" {
		response["notice"] = "`username` parameter is empty, so HasUpvoted and HasDownvoted are always false"
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": errInvalidAuthorization.Error()})
		return
	}
	username, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "not signed in"})
		return
	}
	c.Set(usernameContextKey, username)
	c.Next()
}

func parseOffset(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("offset", "0")
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "offset must be a non-negative integer"})
		return 0, false
	}
	return offset, true
}

func listing(rows []SubmissionRow, offset int) listingPayload {
	payload := listingPayload{Results: make([]submissionRowPayload, 0, len(rows))}
	for _, row := range rows {
		payload.Results = append(payload.Results, submissionRowPayload{
			ID:        row.ID,
			Title:     row.Title,
			Username:  row.Author,
			Link:      row.Link,
			Body:      row.Body,
			Flagged:   row.Flagged,
			CreatedAt: formatTime(row.CreatedAt),
			Upvotes:   row.Upvotes,
			Downvotes: row.Downvotes,
		})
	}
	if len(rows) == PageSize {
		next := strconv.Itoa(offset + PageSize)
		payload.Next = &next
	}
	return payload
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}
