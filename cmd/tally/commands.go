package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/config"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/logging"
	"github.com/MarcoPoloResearchLab/tally/internal/stubapi"
	"github.com/MarcoPoloResearchLab/tally/internal/ux"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	stubIssuer   = "tally-stub"
	demoUsername = "demo"
)

// withApp opens the client object graph for the duration of run.
func withApp(cmd *cobra.Command, run func(ctx context.Context, application *app) error) error {
	application, err := openApp(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer application.Close()
	return run(cmd.Context(), application)
}

func newFeedCommand() *cobra.Command {
	var (
		sortInput string
		pages     int
		username  string
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List submissions page by page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sortKey, err := feed.ParseSortKey(sortInput)
			if err != nil {
				return err
			}
			if pages < 1 {
				return fmt.Errorf("--pages must be at least 1")
			}
			return withApp(cmd, func(ctx context.Context, application *app) error {
				source := application.client.FrontPage()
				if strings.TrimSpace(username) != "" {
					source = application.client.UserPage(username)
				}
				listing, err := application.coordinator.OpenFeed(source, sortKey, func(page feed.Page) {
					fmt.Fprint(application.out, ux.Feed(page))
				})
				if err != nil {
					return err
				}
				if err := listing.Refresh(ctx); err != nil {
					return err
				}
				for shown := 1; shown < pages; shown++ {
					err := listing.Advance(ctx)
					if errors.Is(err, feed.ErrAtEnd) {
						return nil
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortInput, "sort", string(feed.SortLatest), "Sort order (latest, top, oldest)")
	cmd.Flags().IntVar(&pages, "pages", 1, "Number of pages to show")
	cmd.Flags().StringVar(&username, "user", "", "Show one author's submissions")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <submission>",
		Short: "Show a submission with its comment thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				view, err := application.coordinator.OpenSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(application.out, ux.Submission(view))
				return nil
			})
		},
	}
}

func newVoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <submission> up|down",
		Short: "Vote on a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := parseIntent(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, application *app) error {
				state, err := application.coordinator.SubmitVote(ctx, args[0], intent)
				if err != nil {
					return err
				}
				fmt.Fprintln(application.out, ux.VoteLine(state))
				return nil
			})
		},
	}
}

func newCommentCommand() *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "comment <submission> <text>",
		Short: "Post a comment or a reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			submissionID := args[0]
			text := strings.Join(args[1:], " ")
			return withApp(cmd, func(ctx context.Context, application *app) error {
				if _, err := application.coordinator.SubmitComment(ctx, submissionID, parentID, text); err != nil {
					return err
				}
				fmt.Fprint(application.out, ux.Thread(application.coordinator.Thread(submissionID)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "Comment id to reply to")
	return cmd
}

func newCommentVoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "comment-vote <submission> <comment> up|down",
		Short: "Vote on a comment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			submissionID, commentID := args[0], args[1]
			intent, err := parseIntent(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, application *app) error {
				if _, err := application.coordinator.RefreshComments(ctx, submissionID); err != nil {
					return err
				}
				_, voteErr := application.coordinator.VoteComment(ctx, commentID, intent)
				fmt.Fprint(application.out, ux.Thread(application.coordinator.Thread(submissionID)))
				return voteErr
			})
		},
	}
}

func newLoginCommand() *cobra.Command {
	var (
		token    string
		username string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token obtained from the sign-in flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				current, err := application.gate.SignIn(token)
				if err != nil {
					return err
				}
				name := strings.TrimSpace(username)
				if name == "" {
					name = current.Identity
				}
				if err := application.credentials.Save(ctx, token, name); err != nil {
					return err
				}
				if name == "" {
					name = "an unnamed account"
				}
				fmt.Fprintln(application.out, ux.Styles.Success.Render("✓ Signed in as "+name+"."))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Bearer token")
	cmd.Flags().StringVar(&username, "username", "", "Display name when the token does not carry one")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				application.gate.SignOut()
				if err := application.credentials.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(application.out, ux.Styles.Muted.Render("Signed out."))
				return nil
			})
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				if !application.gate.Authenticated() {
					fmt.Fprintln(application.out, ux.Styles.Muted.Render("Not signed in."))
					return nil
				}
				name, ok := application.gate.Identity()
				if !ok {
					record, found, err := application.credentials.Load(ctx)
					if err != nil {
						return err
					}
					if found {
						name = record.Username
					}
				}
				if name == "" {
					name = "an unnamed account"
				}
				fmt.Fprintln(application.out, "Signed in as "+name+".")
				return nil
			})
		},
	}
}

func newStubServerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Serve an in-memory development API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStubServer(cmd.Context())
		},
	}
	defaults := config.NewViper()
	cmd.Flags().String("address", defaults.GetString("stub.address"), "HTTP listen address")
	cmd.Flags().String("signing-secret", "", "HS256 signing secret (overrides env)")
	cmd.Flags().Int("seed", defaults.GetInt("stub.seed"), "Number of demo submissions")
	for key, flag := range map[string]string{
		"stub.address":        "address",
		"stub.signing_secret": "signing-secret",
		"stub.seed":           "seed",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runStubServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := appConfig.ValidateStub(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tokenIssuer, err := stubapi.NewTokenIssuer(stubapi.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.StubSigningSecret),
		Issuer:        stubIssuer,
	})
	if err != nil {
		return err
	}

	board := stubapi.NewBoard(stubapi.BoardConfig{})
	if err := stubapi.SeedDemo(board, appConfig.StubSeed, time.Now()); err != nil {
		return err
	}

	handler, err := stubapi.NewHTTPHandler(stubapi.Dependencies{
		Board:    board,
		Tokens:   tokenIssuer,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	demoToken, expiresAt, err := tokenIssuer.Issue(demoUsername)
	if err != nil {
		return err
	}
	logger.Info("demo token issued",
		zap.String("username", demoUsername),
		zap.Time("expires_at", expiresAt),
		zap.String("token", demoToken))

	httpServer := &http.Server{
		Addr:    appConfig.StubAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub server starting",
			zap.String("address", appConfig.StubAddress),
			zap.String("base_path", stubapi.BasePath))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func parseIntent(rawInput string) (votes.Vote, error) {
	intent, err := votes.ParseVote(rawInput)
	if err != nil {
		return votes.VoteNone, err
	}
	if !intent.IsIntent() {
		return votes.VoteNone, fmt.Errorf("%w: expected up or down", votes.ErrInvalidIntent)
	}
	return intent, nil
}
