package ux

import (
	"fmt"
	"io"
	"sync"

	"github.com/MarcoPoloResearchLab/tally/internal/coordinator"
)

// Presenter writes coordinator notices to a terminal stream.
type Presenter struct {
	mu            sync.Mutex
	out           io.Writer
	loginRequired bool
}

// NewPresenter constructs a Presenter writing to out.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

// Notify prints a styled notice line.
func (p *Presenter) Notify(notice coordinator.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, noticeLine(notice))
}

// RequireLogin prints a sign-in prompt and remembers that one was shown.
func (p *Presenter) RequireLogin(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginRequired = true
	fmt.Fprintln(p.out, Styles.Warning.Render("⚠ "+reason+". Run `tally login --token <token>` to sign in."))
}

// LoginRequired reports whether a sign-in prompt was shown.
func (p *Presenter) LoginRequired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginRequired
}

func noticeLine(notice coordinator.Notice) string {
	switch notice.Level {
	case coordinator.NoticeSuccess:
		return Styles.Success.Render("✓ " + notice.Message)
	case coordinator.NoticeWarning:
		return Styles.Warning.Render("⚠ " + notice.Message)
	case coordinator.NoticeError:
		return Styles.Error.Render("✗ " + notice.Message)
	default:
		return Styles.Muted.Render("• " + notice.Message)
	}
}
