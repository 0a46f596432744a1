// Package ux renders feed, submission and comment state for the terminal.
package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/coordinator"
	"github.com/MarcoPoloResearchLab/tally/internal/feed"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#FF6600")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#7A7A7A")
)

// Styles holds the pre-configured lipgloss styles.
var Styles = struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Score    lipgloss.Style
	Flagged  lipgloss.Style
	Pending  lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Header   lipgloss.Style
	Selected lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(colorMuted),
	Score:    lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
	Flagged:  lipgloss.NewStyle().Foreground(colorError).Italic(true),
	Pending:  lipgloss.NewStyle().Foreground(colorWarning),
	Success:  lipgloss.NewStyle().Foreground(colorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(colorWarning),
	Error:    lipgloss.NewStyle().Foreground(colorError),
	Header:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1),
	Selected: lipgloss.NewStyle().Foreground(colorAccent),
}

const (
	threadIndent     = "  "
	flaggedPlacement = "[flagged]"
)

// Feed renders one page of a listing.
func Feed(page feed.Page) string {
	var builder strings.Builder
	header := fmt.Sprintf("%s · page %d", page.SortKey, page.Number())
	builder.WriteString(Styles.Header.Render(header))
	builder.WriteString("\n")

	switch page.Status {
	case feed.StatusErrored:
		builder.WriteString(Styles.Error.Render("could not load this page"))
		builder.WriteString("\n")
		return builder.String()
	case feed.StatusLoading, feed.StatusIdle:
		builder.WriteString(Styles.Muted.Render("loading…"))
		builder.WriteString("\n")
		return builder.String()
	}

	if len(page.Items) == 0 {
		builder.WriteString(Styles.Muted.Render("nothing here yet"))
		builder.WriteString("\n")
	}
	for index, item := range page.Items {
		rank := page.Offset + index + 1
		title := Styles.Title.Render(item.Title)
		if item.Flagged {
			title = Styles.Flagged.Render(flaggedPlacement) + " " + title
		}
		fmt.Fprintf(&builder, "%3d. %s %s\n", rank, Styles.Score.Render(fmt.Sprintf("%+d", item.Score())), title)
		meta := fmt.Sprintf("     by %s · %s · id %s", item.Author, age(item.CreatedAt), item.ID)
		if item.Link != "" {
			meta += " · " + item.Link
		}
		builder.WriteString(Styles.Muted.Render(meta))
		builder.WriteString("\n")
	}
	if page.AtEnd {
		builder.WriteString(Styles.Muted.Render("— end of feed —"))
		builder.WriteString("\n")
	}
	return builder.String()
}

// VoteLine renders a tally with the viewer's vote and any pending mutation.
func VoteLine(state votes.State) string {
	line := fmt.Sprintf("%s  (%d up / %d down)", Styles.Score.Render(fmt.Sprintf("%+d", state.Score())), state.Upvotes, state.Downvotes)
	if state.ViewerVote != votes.VoteNone {
		line += " " + Styles.Selected.Render("you voted "+state.ViewerVote.String())
	}
	if state.HasPending() {
		line += " " + Styles.Pending.Render("saving…")
	}
	return line
}

// Submission renders a submission with its comment tree.
func Submission(view coordinator.SubmissionView) string {
	var builder strings.Builder
	title := view.Submission.Title
	if view.Submission.Flagged {
		title = flaggedPlacement + " " + title
	}
	builder.WriteString(Styles.Header.Render(title))
	builder.WriteString("\n")
	meta := fmt.Sprintf("by %s · %s", view.Submission.Author, age(view.Submission.CreatedAt))
	if view.Submission.Link != "" {
		meta += " · " + view.Submission.Link
	}
	builder.WriteString(Styles.Muted.Render(meta))
	builder.WriteString("\n")
	if body := strings.TrimSpace(view.Submission.Body); body != "" {
		builder.WriteString(body)
		builder.WriteString("\n")
	}
	builder.WriteString(VoteLine(view.Votes))
	builder.WriteString("\n\n")
	builder.WriteString(Thread(view.Comments))
	return builder.String()
}

// Thread renders a comment tree depth first.
func Thread(roots []*comments.Node) string {
	if len(roots) == 0 {
		return Styles.Muted.Render("no comments yet") + "\n"
	}
	var builder strings.Builder
	for _, root := range roots {
		writeNode(&builder, root, 0)
	}
	return builder.String()
}

func writeNode(builder *strings.Builder, node *comments.Node, depth int) {
	indent := strings.Repeat(threadIndent, depth)
	comment := node.Comment
	header := fmt.Sprintf("%s%s %s · %s · id %s", indent,
		Styles.Score.Render(fmt.Sprintf("%+d", comment.Upvotes-comment.Downvotes)),
		Styles.Title.Render(comment.Author),
		age(comment.CreatedAt),
		comment.ID)
	if comment.ViewerVote != votes.VoteNone {
		header += " " + Styles.Selected.Render("("+comment.ViewerVote.String()+")")
	}
	builder.WriteString(header)
	builder.WriteString("\n")
	content := comment.Content
	if comment.Flagged {
		content = Styles.Flagged.Render(flaggedPlacement) + " " + content
	}
	for _, line := range strings.Split(content, "\n") {
		builder.WriteString(indent + threadIndent + line + "\n")
	}
	for _, reply := range node.Replies {
		writeNode(builder, reply, depth+1)
	}
}

func age(createdAt time.Time) string {
	if createdAt.IsZero() {
		return "unknown time"
	}
	elapsed := time.Since(createdAt)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return createdAt.UTC().Format("2006-01-02")
	}
}
