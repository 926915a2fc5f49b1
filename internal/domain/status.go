package domain

import (
	"fmt"
	"strings"
)

// Stage names one of the four remote calls made per row.
type Stage string

const (
	StageNone     Stage = ""
	StageCreate   Stage = "create"
	StageUpload   Stage = "upload"
	StageAnnotate Stage = "annotate"
	StagePublish  Stage = "publish"
)

// RowState is the per-row pipeline state.
type RowState string

const (
	StatePending   RowState = "pending"
	StateCreated   RowState = "created"
	StateUploaded  RowState = "uploaded"
	StateAnnotated RowState = "annotated"
	StateFinalized RowState = "finalized"
	StateFailed    RowState = "failed"
)

var nextState = map[RowState]RowState{
	StatePending:   StateCreated,
	StateCreated:   StateUploaded,
	StateUploaded:  StateAnnotated,
	StateAnnotated: StateFinalized,
}

// Advance returns the state that follows s when the given target is the
// immediate successor. Skips, reversals and moves out of a terminal state
// are rejected.
func (s RowState) Advance(target RowState) (RowState, error) {
	if s.Terminal() {
		return s, fmt.Errorf("row state %s is terminal", s)
	}
	if target == StateFailed {
		return StateFailed, nil
	}
	if nextState[s] != target {
		return s, fmt.Errorf("invalid row transition %s -> %s", s, target)
	}
	return target, nil
}

// Terminal reports whether no further transition is allowed. Annotated is
// not terminal here because the machine itself is mode-free; see EndsRun.
func (s RowState) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

// EndsRun reports whether s is a terminal state for a row run in mode m.
// In dry-run Annotated is the successful end state.
func (s RowState) EndsRun(m Mode) bool {
	if s == StateAnnotated {
		return !m.Finalizes()
	}
	return s.Terminal()
}

// Mode selects how a row is finalized after its metadata is attached.
type Mode string

const (
	ModePublish         Mode = "publish"
	ModeCommunitySubmit Mode = "community-submit"
	ModeDryRun          Mode = "dry-run"
)

var modeReportPrefixes = map[Mode]string{
	ModePublish:         "published",
	ModeCommunitySubmit: "community",
	ModeDryRun:          "draft",
}

// ParseMode returns the mode for a CLI value (case-insensitive).
func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	if mode == "" {
		return ModePublish, nil
	}
	if _, ok := modeReportPrefixes[mode]; !ok {
		return "", fmt.Errorf("unknown mode %q (want publish, community-submit or dry-run)", value)
	}
	return mode, nil
}

// ReportPrefix is the file name prefix used for this mode's outcome tables.
func (m Mode) ReportPrefix() string {
	if prefix, ok := modeReportPrefixes[m]; ok {
		return prefix
	}
	return "published"
}

// Finalizes reports whether the mode runs a fourth stage after annotation.
func (m Mode) Finalizes() bool {
	return m != ModeDryRun
}
