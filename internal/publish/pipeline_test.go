package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/andresuchdata/radx-zenodo-upload/internal/zenodo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDepositClient is a mock implementation of the DepositClient interface.
type MockDepositClient struct {
	mock.Mock
}

func (m *MockDepositClient) ListDepositions(ctx context.Context) ([]zenodo.Deposition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]zenodo.Deposition), args.Error(1)
}

func (m *MockDepositClient) CreateDeposition(ctx context.Context) (*zenodo.Deposition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zenodo.Deposition), args.Error(1)
}

func (m *MockDepositClient) UploadFile(ctx context.Context, bucketURL, filename string, content io.Reader) (*zenodo.FileInfo, error) {
	args := m.Called(ctx, bucketURL, filename, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zenodo.FileInfo), args.Error(1)
}

func (m *MockDepositClient) UpdateMetadata(ctx context.Context, depositionID int64, md domain.Metadata) (*zenodo.Deposition, error) {
	args := m.Called(ctx, depositionID, md)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zenodo.Deposition), args.Error(1)
}

func (m *MockDepositClient) Publish(ctx context.Context, depositionID int64) (*zenodo.Deposition, error) {
	args := m.Called(ctx, depositionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zenodo.Deposition), args.Error(1)
}

func (m *MockDepositClient) SubmitToCommunity(ctx context.Context, depositionID int64, community string) error {
	args := m.Called(ctx, depositionID, community)
	return args.Error(0)
}

// MockRecorder is a mock implementation of the Recorder interface.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordOutcome(ctx context.Context, runID uuid.UUID, outcome domain.Outcome) error {
	args := m.Called(ctx, runID, outcome)
	return args.Error(0)
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	return path
}

func testRow(index int, filename string) domain.Row {
	return domain.Row{Index: index, Fields: map[string]string{
		domain.ColumnFilename:     filename,
		domain.ColumnTitle:        "Title " + filename,
		domain.ColumnResourceType: "dataset",
		domain.ColumnDescription:  "desc",
		domain.ColumnCreators:     "Doe, John",
		domain.ColumnKeywords:     "RADx",
	}}
}

func deposition(id int64) *zenodo.Deposition {
	return &zenodo.Deposition{ID: id, Links: zenodo.DepositionLinks{Bucket: fmt.Sprintf("http://bucket/%d", id)}}
}

func expectHappyPath(m *MockDepositClient, id int64) {
	m.On("CreateDeposition", mock.Anything).Return(deposition(id), nil).Once()
	m.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil).Once()
	m.On("UpdateMetadata", mock.Anything, id, mock.Anything).Return(deposition(id), nil).Once()
	m.On("Publish", mock.Anything, id).Return(deposition(id), nil).Once()
}

func TestProcessRowPublishesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.csv")

	client := new(MockDepositClient)
	var order []string
	client.On("CreateDeposition", mock.Anything).Return(deposition(11), nil).
		Run(func(mock.Arguments) { order = append(order, "create") })
	client.On("UploadFile", mock.Anything, deposition(11).Links.Bucket, "data.csv", mock.Anything).Return(&zenodo.FileInfo{}, nil).
		Run(func(mock.Arguments) { order = append(order, "upload") })
	client.On("UpdateMetadata", mock.Anything, int64(11), mock.MatchedBy(func(md domain.Metadata) bool {
		return md.Title == "Title data.csv" && len(md.Communities) == 1 && md.Communities[0].Identifier == "radx"
	})).Return(deposition(11), nil).
		Run(func(mock.Arguments) { order = append(order, "annotate") })
	client.On("Publish", mock.Anything, int64(11)).Return(deposition(11), nil).
		Run(func(mock.Arguments) { order = append(order, "publish") })

	p := NewPublisher(client, Config{FileDir: dir, CommunityID: "radx"})
	outcome := p.ProcessRow(context.Background(), testRow(0, "data.csv"))

	require.True(t, outcome.Succeeded(), outcome.ErrorMessage)
	require.NotNil(t, outcome.DepositionID)
	assert.Equal(t, int64(11), *outcome.DepositionID)
	assert.Equal(t, domain.StateFinalized, outcome.State)
	assert.Equal(t, filepath.Join(dir, "data.csv"), outcome.SourceFile)
	assert.Equal(t, []string{"create", "upload", "annotate", "publish"}, order)
	client.AssertExpectations(t)
}

func TestProcessRowStopsAtFirstFailedStage(t *testing.T) {
	remoteErr := &zenodo.RemoteError{Op: "x", StatusCode: 500, Body: "boom"}

	tests := []struct {
		name       string
		failStage  domain.Stage
		reason     string
		notCalled  []string
		wantDepID  bool
		setupMocks func(m *MockDepositClient)
	}{
		{
			name:      "create",
			failStage: domain.StageCreate,
			reason:    "CreateFailed",
			notCalled: []string{"UploadFile", "UpdateMetadata", "Publish"},
			setupMocks: func(m *MockDepositClient) {
				m.On("CreateDeposition", mock.Anything).Return(nil, remoteErr)
			},
		},
		{
			name:      "upload",
			failStage: domain.StageUpload,
			reason:    "UploadFailed",
			notCalled: []string{"UpdateMetadata", "Publish"},
			wantDepID: true,
			setupMocks: func(m *MockDepositClient) {
				m.On("CreateDeposition", mock.Anything).Return(deposition(3), nil)
				m.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, remoteErr)
			},
		},
		{
			name:      "annotate",
			failStage: domain.StageAnnotate,
			reason:    "MetadataFailed",
			notCalled: []string{"Publish"},
			wantDepID: true,
			setupMocks: func(m *MockDepositClient) {
				m.On("CreateDeposition", mock.Anything).Return(deposition(3), nil)
				m.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil)
				m.On("UpdateMetadata", mock.Anything, int64(3), mock.Anything).Return(nil, &zenodo.TransportError{Op: "x", Err: errors.New("reset")})
			},
		},
		{
			name:      "publish",
			failStage: domain.StagePublish,
			reason:    "PublishFailed",
			wantDepID: true,
			setupMocks: func(m *MockDepositClient) {
				m.On("CreateDeposition", mock.Anything).Return(deposition(3), nil)
				m.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil)
				m.On("UpdateMetadata", mock.Anything, int64(3), mock.Anything).Return(deposition(3), nil)
				m.On("Publish", mock.Anything, int64(3)).Return(nil, remoteErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "f.bin")

			client := new(MockDepositClient)
			tt.setupMocks(client)

			p := NewPublisher(client, Config{FileDir: dir})
			outcome := p.ProcessRow(context.Background(), testRow(0, "f.bin"))

			assert.False(t, outcome.Succeeded())
			assert.Equal(t, tt.failStage, outcome.Stage)
			assert.Equal(t, tt.reason, outcome.Reason)
			assert.Equal(t, domain.StateFailed, outcome.State)
			assert.NotEmpty(t, outcome.ErrorMessage)
			assert.Equal(t, tt.wantDepID, outcome.DepositionID != nil)
			for _, method := range tt.notCalled {
				client.AssertNumberOfCalls(t, method, 0)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestProcessRowMissingFileMakesNoRemoteCall(t *testing.T) {
	client := new(MockDepositClient)
	p := NewPublisher(client, Config{FileDir: t.TempDir()})

	outcome := p.ProcessRow(context.Background(), testRow(4, "missing.csv"))

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, domain.StageUpload, outcome.Stage)
	assert.Nil(t, outcome.DepositionID)
	assert.Contains(t, outcome.ErrorMessage, "local file error")
	assert.Empty(t, client.Calls)
}

func TestProcessRowRecoversFromPanic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.bin")

	client := new(MockDepositClient)
	client.On("CreateDeposition", mock.Anything).Return(deposition(8), nil)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("nil map") })

	p := NewPublisher(client, Config{FileDir: dir})
	outcome := p.ProcessRow(context.Background(), testRow(0, "f.bin"))

	assert.False(t, outcome.Succeeded())
	assert.Equal(t, domain.StageUpload, outcome.Stage)
	assert.Contains(t, outcome.ErrorMessage, "unexpected error")
	require.NotNil(t, outcome.DepositionID)
	assert.Equal(t, int64(8), *outcome.DepositionID)
	client.AssertNumberOfCalls(t, "UpdateMetadata", 0)
}

func TestRunEveryRowYieldsExactlyOneOutcome(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin")
	writeFile(t, dir, "c.bin")

	client := new(MockDepositClient)
	expectHappyPath(client, 1)
	expectHappyPath(client, 2)

	recorder := new(MockRecorder)
	recorder.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("ledger down"))

	rows := []domain.Row{testRow(0, "a.bin"), testRow(1, "b.bin"), testRow(2, "c.bin")}
	p := NewPublisher(client, Config{FileDir: dir}, WithRecorder(recorder))
	result := p.Run(context.Background(), uuid.New(), rows)

	require.Equal(t, 3, result.Total())
	seen := map[int]int{}
	for _, o := range append(append([]domain.Outcome{}, result.Succeeded...), result.Failed...) {
		seen[o.RowIndex]++
	}
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, seen)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].RowIndex)
	recorder.AssertNumberOfCalls(t, "RecordOutcome", 3)
	client.AssertNumberOfCalls(t, "Publish", 2)
}

func TestRunWindow(t *testing.T) {
	dir := t.TempDir()
	rows := make([]domain.Row, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, testRow(i, "missing.bin"))
	}

	p := NewPublisher(new(MockDepositClient), Config{FileDir: dir, StartRow: 2, Limit: 2})
	result := p.Run(context.Background(), uuid.New(), rows)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, 2, result.Failed[0].RowIndex)
	assert.Equal(t, 3, result.Failed[1].RowIndex)
}

func TestRunStopsWhenInterrupted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin")

	ctx, cancel := context.WithCancel(context.Background())
	client := new(MockDepositClient)
	client.On("CreateDeposition", mock.Anything).Return(deposition(1), nil)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil)
	client.On("UpdateMetadata", mock.Anything, int64(1), mock.Anything).Return(deposition(1), nil)
	client.On("Publish", mock.Anything, int64(1)).Return(deposition(1), nil).Run(func(mock.Arguments) { cancel() })

	rows := []domain.Row{testRow(0, "a.bin"), testRow(1, "a.bin")}
	result := NewPublisher(client, Config{FileDir: dir}).Run(ctx, uuid.New(), rows)

	assert.True(t, result.Interrupted)
	assert.Len(t, result.Succeeded, 1)
	assert.Empty(t, result.Failed)
	client.AssertNumberOfCalls(t, "CreateDeposition", 1)
}

func TestRunFinishesRowInFlightWhenInterrupted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin")

	ctx, cancel := context.WithCancel(context.Background())
	var stageCtxErrs []error
	observe := func(args mock.Arguments) {
		stageCtxErrs = append(stageCtxErrs, args.Get(0).(context.Context).Err())
	}

	client := new(MockDepositClient)
	client.On("CreateDeposition", mock.Anything).Return(deposition(7), nil).Run(observe)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil).
		Run(func(args mock.Arguments) {
			cancel()
			observe(args)
		})
	client.On("UpdateMetadata", mock.Anything, int64(7), mock.Anything).Return(deposition(7), nil).Run(observe)
	client.On("Publish", mock.Anything, int64(7)).Return(deposition(7), nil).Run(observe)

	rows := []domain.Row{testRow(0, "a.bin"), testRow(1, "a.bin")}
	result := NewPublisher(client, Config{FileDir: dir}).Run(ctx, uuid.New(), rows)

	assert.True(t, result.Interrupted)
	require.Len(t, result.Succeeded, 1)
	assert.Empty(t, result.Failed)
	assert.Equal(t, domain.StateFinalized, result.Succeeded[0].State)
	assert.Equal(t, []error{nil, nil, nil, nil}, stageCtxErrs, "stage calls never see the interrupt")
	client.AssertNumberOfCalls(t, "CreateDeposition", 1)
	client.AssertNumberOfCalls(t, "Publish", 1)
}

func TestDryRunNeverPublishes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin")

	client := new(MockDepositClient)
	client.On("CreateDeposition", mock.Anything).Return(deposition(5), nil)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil)
	client.On("UpdateMetadata", mock.Anything, int64(5), mock.Anything).Return(deposition(5), nil)

	p := NewPublisher(client, Config{FileDir: dir, Mode: domain.ModeDryRun})
	outcome := p.ProcessRow(context.Background(), testRow(0, "a.bin"))

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, domain.StateAnnotated, outcome.State)
	client.AssertNumberOfCalls(t, "Publish", 0)
	client.AssertNumberOfCalls(t, "SubmitToCommunity", 0)
}

func TestCommunitySubmitReplacesPublish(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bin")

	client := new(MockDepositClient)
	client.On("CreateDeposition", mock.Anything).Return(deposition(6), nil)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&zenodo.FileInfo{}, nil)
	client.On("UpdateMetadata", mock.Anything, int64(6), mock.Anything).Return(deposition(6), nil)
	client.On("SubmitToCommunity", mock.Anything, int64(6), "radx").Return(nil)

	p := NewPublisher(client, Config{FileDir: dir, Mode: domain.ModeCommunitySubmit, CommunityID: "radx"})
	outcome := p.ProcessRow(context.Background(), testRow(0, "a.bin"))

	assert.True(t, outcome.Succeeded())
	assert.Equal(t, domain.StateFinalized, outcome.State)
	client.AssertNumberOfCalls(t, "Publish", 0)
	client.AssertExpectations(t)
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "rows.csv")

	t.Run("missing input", func(t *testing.T) {
		client := new(MockDepositClient)
		err := NewPublisher(client, Config{AccessToken: "tok"}).Preflight(context.Background(), filepath.Join(dir, "nope.csv"))
		assert.ErrorIs(t, err, ErrInputMissing)
		assert.Empty(t, client.Calls)
	})

	t.Run("missing token", func(t *testing.T) {
		client := new(MockDepositClient)
		err := NewPublisher(client, Config{}).Preflight(context.Background(), input)
		assert.ErrorIs(t, err, ErrMissingToken)
		assert.Empty(t, client.Calls)
	})

	t.Run("community mode without community", func(t *testing.T) {
		client := new(MockDepositClient)
		err := NewPublisher(client, Config{AccessToken: "tok", Mode: domain.ModeCommunitySubmit}).Preflight(context.Background(), input)
		assert.ErrorIs(t, err, ErrMissingCommunity)
	})

	t.Run("probe rejected", func(t *testing.T) {
		client := new(MockDepositClient)
		client.On("ListDepositions", mock.Anything).Return(nil, &zenodo.RemoteError{Op: "list depositions", StatusCode: 401})
		err := NewPublisher(client, Config{AccessToken: "bad"}).Preflight(context.Background(), input)
		assert.ErrorIs(t, err, ErrProbeFailed)
	})

	t.Run("ok", func(t *testing.T) {
		client := new(MockDepositClient)
		client.On("ListDepositions", mock.Anything).Return([]zenodo.Deposition{}, nil)
		assert.NoError(t, NewPublisher(client, Config{AccessToken: "tok"}).Preflight(context.Background(), input))
	})
}

func TestBuildRequestKeepsAbsolutePaths(t *testing.T) {
	p := NewPublisher(new(MockDepositClient), Config{FileDir: "/data/in"})

	abs := p.BuildRequest(testRow(0, "/tmp/x.csv"))
	rel := p.BuildRequest(testRow(0, "x.csv"))

	assert.Equal(t, "/tmp/x.csv", abs.LocalFilePath)
	assert.Equal(t, filepath.Join("/data/in", "x.csv"), rel.LocalFilePath)
}
