package coordinator

import "context"

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Presenter receives every user-visible outcome decided by the coordinator.
type Presenter interface {
	Notify(notice Notice)
	// RequireLogin asks the user to authenticate again.
	RequireLogin(reason string)
}

// ChallengeProvider supplies anti-abuse tokens for mutations that need one.
type ChallengeProvider interface {
	Challenge(ctx context.Context, action string) (string, error)
}

// StaticChallenge returns the same token for every action.
type StaticChallenge string

// Challenge returns s.
func (s StaticChallenge) Challenge(context.Context, string) (string, error) {
	return string(s), nil
}

type nopPresenter struct{}

func (nopPresenter) Notify(Notice)       {}
func (nopPresenter) RequireLogin(string) {}
