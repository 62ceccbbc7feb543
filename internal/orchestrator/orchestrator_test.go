package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skillvet/internal/agent"
	"skillvet/internal/model"
	"skillvet/internal/pipeline"
	"skillvet/internal/security"
	"skillvet/internal/semantic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestArchiveName(t *testing.T) {
	tests := []struct {
		file string
		want string
		ok   bool
	}{
		{"weather.zip", "weather", true},
		{"weather.tar.gz", "weather", true},
		{"Weather.TGZ", "Weather", true},
		{"notes.skill", "notes", true},
		{"readme.txt", "", false},
		{".zip", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, ok := ArchiveName(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArchiveDirPoller_Poll(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip"), []byte("zipdata"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tar.gz"), []byte("tgzdata"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644))

	items, err := poller.Poll(context.Background(), discard(), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	names := []string{items[0].Name, items[1].Name}
	assert.ElementsMatch(t, []string{"a", "b"}, names)
	for _, item := range items {
		assert.Equal(t, filepath.Join(poller.ProcessedDir(), item.ID), item.Path)
		assert.FileExists(t, item.Path)
		assert.NoFileExists(t, filepath.Join(dir, item.ID))
	}
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))

	again, err := poller.Poll(context.Background(), discard(), 0)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestArchiveDirPoller_PollLimitAndRelease(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)
	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}

	items, err := poller.Poll(context.Background(), discard(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.zip", items[0].ID)
	assert.Equal(t, "b.zip", items[1].ID)
	assert.FileExists(t, filepath.Join(dir, "c.zip"))

	require.NoError(t, poller.Release(context.Background(), items[1]))
	assert.FileExists(t, filepath.Join(dir, "b.zip"))
	assert.NoFileExists(t, items[1].Path)

	rest, err := poller.Poll(context.Background(), discard(), 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "b.zip", rest[0].ID)
	assert.Equal(t, []byte("b.zip"), rest[0].Data)
}

func TestArchiveDirPoller_TooLarge(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)
	poller.SetMaxSize(4)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.zip"), []byte("0123456789"), 0644))

	items, err := poller.Poll(context.Background(), discard(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.FileExists(t, filepath.Join(dir, "failed", "big.zip"))
}

func TestArchiveDirPoller_UpdateStatus(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)

	item := WorkItem{ID: "a.zip", Name: "a"}
	require.NoError(t, poller.UpdateStatus(context.Background(), item, StatusBlocked, "risk=critical"))
	assert.Equal(t, StatusBlocked, poller.Status("a.zip"))

	data, err := os.ReadFile(filepath.Join(poller.ProcessedDir(), "status.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "a.zip\tBlocked\trisk=critical")
}

type fakeRunner struct {
	report *model.CombinedReport
	err    error
}

func (f fakeRunner) Run(_ context.Context, in pipeline.Input) (*model.CombinedReport, error) {
	if f.report == nil {
		return nil, f.err
	}
	r := *f.report
	r.Package = in.Name
	return &r, f.err
}

func TestReportProcessor(t *testing.T) {
	tests := []struct {
		name       string
		runner     fakeRunner
		wantStatus string
		wantErr    bool
		wantFile   bool
	}{
		{
			name:       "clean package",
			runner:     fakeRunner{report: &model.CombinedReport{ID: "r1", RiskLevel: model.RiskLow, Score: 100}},
			wantStatus: StatusDone,
			wantFile:   true,
		},
		{
			name:       "blocked package",
			runner:     fakeRunner{report: &model.CombinedReport{ID: "r2", RiskLevel: model.RiskCritical, BlockExecution: true}},
			wantStatus: StatusBlocked,
			wantFile:   true,
		},
		{
			name:       "store failure still writes report",
			runner:     fakeRunner{report: &model.CombinedReport{ID: "r3", RiskLevel: model.RiskLow}, err: errors.New("db down")},
			wantStatus: StatusDone,
			wantFile:   true,
		},
		{
			name:       "no report",
			runner:     fakeRunner{err: errors.New("boom")},
			wantStatus: StatusFailed,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := NewReportProcessor(tt.runner, "")
			status, comment, err := p.Process(context.Background(), WorkItem{ID: "pkg.zip", Name: "pkg", Path: filepath.Join(dir, "pkg.zip")})

			assert.Equal(t, tt.wantStatus, status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			out := filepath.Join(dir, "pkg.report.json")
			if !tt.wantFile {
				assert.NoFileExists(t, out)
				return
			}
			data, rerr := os.ReadFile(out)
			require.NoError(t, rerr)
			var got model.CombinedReport
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, "pkg", got.Package)
			assert.Contains(t, comment, "report=")
		})
	}
}

type sliceInbox struct {
	mu       sync.Mutex
	queue    []WorkItem
	statuses map[string]string
	released []string
}

func (s *sliceInbox) Poll(_ context.Context, _ *slog.Logger, limit int) ([]WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	if limit > 0 && limit < n {
		n = limit
	}
	next := s.queue[:n:n]
	s.queue = s.queue[n:]
	return next, nil
}

func (s *sliceInbox) Release(_ context.Context, item WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, item.ID)
	s.queue = append(s.queue, item)
	return nil
}

func (s *sliceInbox) UpdateStatus(_ context.Context, item WorkItem, status, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[item.ID] = status
	return nil
}

func (s *sliceInbox) snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = v
	}
	return out
}

type countingProcessor struct {
	active, peak atomic.Int32
}

func (c *countingProcessor) Process(_ context.Context, item WorkItem) (string, string, error) {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	c.active.Add(-1)
	if strings.HasPrefix(item.ID, "bad") {
		return StatusFailed, "bad archive", errors.New("bad archive")
	}
	if item.ID == "panic" {
		panic("processor bug")
	}
	return StatusDone, "", nil
}

func TestOrchestrator_BoundedWorkers(t *testing.T) {
	var items []WorkItem
	for _, id := range []string{"a", "b", "c", "d", "e", "bad1", "panic"} {
		items = append(items, WorkItem{ID: id})
	}
	inbox := &sliceInbox{queue: items, statuses: map[string]string{}}
	proc := &countingProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	o := New(inbox, proc, 10*time.Millisecond, 2)

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, discard()) }()

	assert.Eventually(t, func() bool { return len(inbox.snapshot()) == len(items) }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	statuses := inbox.snapshot()
	assert.Equal(t, StatusDone, statuses["a"])
	assert.Equal(t, StatusFailed, statuses["bad1"])
	assert.Equal(t, StatusFailed, statuses["panic"])
	assert.LessOrEqual(t, proc.peak.Load(), int32(2))
}

// blockingProcessor holds every item until the run is cancelled.
type blockingProcessor struct {
	started atomic.Int32
}

func (b *blockingProcessor) Process(ctx context.Context, _ WorkItem) (string, string, error) {
	b.started.Add(1)
	<-ctx.Done()
	return StatusDone, "", nil
}

func TestOrchestrator_ShutdownLeavesUnstartedInInbox(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)
	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}

	proc := &blockingProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	o := New(poller, proc, 10*time.Millisecond, 1)

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, discard()) }()

	assert.Eventually(t, func() bool { return proc.started.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.Equal(t, int32(1), proc.started.Load())
	assert.Equal(t, StatusDone, poller.Status("a.zip"))
	assert.FileExists(t, filepath.Join(poller.ProcessedDir(), "a.zip"))
	for _, name := range []string{"b.zip", "c.zip"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.NoFileExists(t, filepath.Join(poller.ProcessedDir(), name))
		assert.Empty(t, poller.Status(name))
	}
}

func TestOrchestrator_ReleasesItemsClaimedAfterCancel(t *testing.T) {
	inbox := &sliceInbox{queue: []WorkItem{{ID: "late"}}, statuses: map[string]string{}}
	o := New(inbox, &countingProcessor{}, time.Hour, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.process(ctx, discard(), WorkItem{ID: "late"})

	assert.Equal(t, []string{"late"}, inbox.released)
	assert.Empty(t, inbox.snapshot())
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	poller, err := NewArchiveDirPoller(dir)
	require.NoError(t, err)

	pkg := zipOf(t, map[string]string{
		"SKILL.md":       "---\nname: greeter\n---\nSays hello.\n",
		"scripts/run.sh": "#!/bin/sh\necho hello\n",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.zip"), pkg, 0644))

	mock := agent.NewMockAgent()
	p := pipeline.New(security.NewRegexScanner(), semantic.NewAnalyzer(mock, semantic.WithLogger(discard())), pipeline.WithLogger(discard()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := New(poller, NewReportProcessor(p, ""), 10*time.Millisecond, 1)
	go func() { _ = o.Run(ctx, discard()) }()

	reportPath := filepath.Join(poller.ProcessedDir(), "greeter.report.json")
	assert.Eventually(t, func() bool { return poller.Status("greeter.zip") != "" }, 5*time.Second, 10*time.Millisecond)
	cancel()

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report model.CombinedReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "greeter", report.Package)
	assert.Equal(t, model.RiskLow, report.RiskLevel)
	assert.Equal(t, StatusDone, poller.Status("greeter.zip"))
}
