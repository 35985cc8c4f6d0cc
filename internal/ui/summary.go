package ui

import (
	"fmt"
	"strings"
	"time"
)

// Summary is the end-of-run report of a migration or housekeeping command.
type Summary struct {
	Title    string
	DryRun   bool
	Elapsed  time.Duration
	Migrated int64
	Skipped  int64
	Failed   int64
	Retried  int64

	// Steps replaces the record counts for commands that run a sequence of
	// operations rather than migrate records.
	Steps []string

	// Unresolved lists source users that matched no Shortcut member.
	Unresolved []string

	// Err is the error that stopped the run, if any.
	Err error
}

// OK reports whether the run finished without failures.
func (s Summary) OK() bool {
	return s.Err == nil && s.Failed == 0
}

// Render formats the summary for the terminal.
func (s Summary) Render() string {
	var b strings.Builder

	title := s.Title
	if s.DryRun {
		title += " (dry run)"
	}
	b.WriteString(RenderCategory(title))
	b.WriteString("\n")
	b.WriteString(RenderSeparator())
	b.WriteString("\n")

	if len(s.Steps) > 0 {
		for _, step := range s.Steps {
			b.WriteString(PassStyle.Render(IconPass) + " " + step + "\n")
		}
	} else {
		s.renderCounts(&b)
	}

	if len(s.Unresolved) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderWarn(fmt.Sprintf("%s %d unresolved users, add them to usersMapping:", IconWarn, len(s.Unresolved))))
		b.WriteString("\n")
		for _, u := range s.Unresolved {
			b.WriteString("  " + TreeLast + u + "\n")
		}
	}

	b.WriteString("\n")
	switch {
	case s.Err != nil:
		b.WriteString(RenderFail(fmt.Sprintf("%s stopped: %v", IconFail, s.Err)))
	case s.Failed > 0:
		b.WriteString(RenderFail(fmt.Sprintf("%s finished with failures", IconFail)))
	default:
		b.WriteString(RenderPass(IconPass + " done"))
	}
	if s.Elapsed > 0 {
		b.WriteString(RenderMuted(" in " + s.Elapsed.Round(time.Second).String()))
	}
	b.WriteString("\n")
	return b.String()
}

func (s Summary) renderCounts(b *strings.Builder) {
	migrated := "migrated"
	if s.DryRun {
		migrated = "would migrate"
	}
	row(b, PassStyle.Render(IconPass), migrated, s.Migrated)
	row(b, MutedStyle.Render(IconSkip), "skipped", s.Skipped)
	if s.Retried > 0 {
		row(b, WarnStyle.Render(IconWarn), "retried", s.Retried)
	}
	failIcon := MutedStyle.Render(IconSkip)
	if s.Failed > 0 {
		failIcon = FailStyle.Render(IconFail)
	}
	row(b, failIcon, "failed", s.Failed)
}

func row(b *strings.Builder, icon, label string, n int64) {
	fmt.Fprintf(b, "%s %s %d\n", icon, labelStyle.Render(label), n)
}
