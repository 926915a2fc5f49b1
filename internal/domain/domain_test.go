package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFromRow(t *testing.T) {
	row := Row{Fields: map[string]string{
		ColumnTitle:        " Survey data ",
		ColumnResourceType: "dataset",
		ColumnDescription:  "Wave 1",
		ColumnCreators:     "Doe, John; Roe, Jane",
		ColumnKeywords:     "RADx-UP",
	}}

	md := MetadataFromRow(row, "radx")

	assert.Equal(t, "Survey data", md.Title)
	assert.Equal(t, "dataset", md.UploadType)
	assert.Equal(t, []Creator{{Name: "Doe, John"}, {Name: "Roe, Jane"}}, md.Creators)
	assert.Equal(t, []string{"RADx-UP"}, md.Keywords)
	assert.Equal(t, []Community{{Identifier: "radx"}}, md.Communities)
}

func TestMetadataFromRowWithoutCommunity(t *testing.T) {
	md := MetadataFromRow(Row{}, " ")

	assert.Nil(t, md.Communities)
	assert.NotNil(t, md.Creators)
	assert.NotNil(t, md.Keywords)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ;; b ;"))
	assert.Nil(t, SplitList("  "))
}

func TestRowStateAdvance(t *testing.T) {
	state := StatePending
	for _, next := range []RowState{StateCreated, StateUploaded, StateAnnotated, StateFinalized} {
		var err error
		state, err = state.Advance(next)
		require.NoError(t, err)
	}
	assert.True(t, state.Terminal())

	_, err := state.Advance(StateFailed)
	assert.Error(t, err, "terminal state must not move")
}

func TestRowStateEndsRun(t *testing.T) {
	tests := []struct {
		state RowState
		mode  Mode
		want  bool
	}{
		{StateAnnotated, ModeDryRun, true},
		{StateAnnotated, ModePublish, false},
		{StateAnnotated, ModeCommunitySubmit, false},
		{StateFinalized, ModePublish, true},
		{StateFailed, ModeDryRun, true},
		{StateUploaded, ModeDryRun, false},
		{StatePending, ModePublish, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state)+"/"+string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.EndsRun(tt.mode))
		})
	}
}

func TestRowStateRejectsSkipAndReverse(t *testing.T) {
	_, err := StatePending.Advance(StateUploaded)
	assert.Error(t, err)

	_, err = StateAnnotated.Advance(StateCreated)
	assert.Error(t, err)

	failed, err := StateUploaded.Advance(StateFailed)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, failed)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModePublish, false},
		{"PUBLISH", ModePublish, false},
		{"community-submit", ModeCommunitySubmit, false},
		{"dry-run", ModeDryRun, false},
		{"delete", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	assert.False(t, ModeDryRun.Finalizes())
	assert.Equal(t, "draft", ModeDryRun.ReportPrefix())
}

func TestStageErrorReasons(t *testing.T) {
	err := fmt.Errorf("row 2: %w", RemoteRejected(StageUpload, 500, "boom"))

	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, "UploadFailed", se.Reason())
	assert.Contains(t, err.Error(), "status code 500")
	assert.True(t, IsKind(err, KindRemoteRejected))
	assert.False(t, IsKind(errors.New("plain"), KindRemoteRejected))

	cause := errors.New("no such file")
	local := LocalIOError(StageUpload, cause)
	assert.ErrorIs(t, local, cause)
	assert.Contains(t, local.Error(), "local file error")
}
