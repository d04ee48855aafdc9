package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/laityts/ddns"
	"github.com/laityts/ddns/history"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") returned nil error")
	}
}

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	repo, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	repo.Close()
}

func TestLastRunOnEmptyDatabase(t *testing.T) {
	repo := newTestRepository(t)

	run, err := repo.LastRun(context.Background())
	if err != nil {
		t.Fatalf("LastRun() error: %v", err)
	}
	if run != nil {
		t.Errorf("LastRun() = %+v, want nil", run)
	}
}

func TestRecordRunRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Minute)
	outcomes := []ddns.Outcome{
		{
			Candidate: ddns.Candidate{IP: "1.2.3.4", Port: 443},
			Status:    ddns.StatusSuccess,
			LatencyMs: 50,
			Succeeded: true,
		},
		{
			Candidate: ddns.Candidate{IP: "5.6.7.8", Port: 9999},
			Status:    ddns.StatusTimeout,
			LatencyMs: ddns.UnknownLatency,
		},
	}

	runID, err := repo.RecordRun(ctx, started, finished, outcomes)
	if err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	if runID <= 0 {
		t.Fatalf("RecordRun() id = %d, want positive", runID)
	}

	run, err := repo.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error: %v", err)
	}
	if run == nil {
		t.Fatal("LastRun() = nil after RecordRun")
	}
	wantRun := &history.Run{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: finished,
		Total:      2,
		Succeeded:  1,
	}
	if diff := cmp.Diff(wantRun, run); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	probes, err := repo.ProbesForRun(ctx, runID)
	if err != nil {
		t.Fatalf("ProbesForRun() error: %v", err)
	}
	wantProbes := []history.Probe{
		{RunID: runID, IP: "1.2.3.4", Port: 443, Status: "success", LatencyMs: 50, Succeeded: true},
		{RunID: runID, IP: "5.6.7.8", Port: 9999, Status: "timeout", LatencyMs: ddns.UnknownLatency},
	}
	if diff := cmp.Diff(wantProbes, probes); diff != "" {
		t.Errorf("probes mismatch (-want +got):\n%s", diff)
	}
}

func TestLastRunPicksNewestRun(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	first, err := repo.RecordRun(ctx, base, base.Add(time.Minute), nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.RecordRun(ctx, base.Add(time.Hour), base.Add(time.Hour+time.Minute), []ddns.Outcome{
		{Candidate: ddns.Candidate{IP: "1.2.3.4", Port: 443}, Status: ddns.StatusSuccess, LatencyMs: 30, Succeeded: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Fatalf("run ids not increasing: %d then %d", first, second)
	}

	run, err := repo.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != second || run.Total != 1 || run.Succeeded != 1 {
		t.Errorf("LastRun() = %+v, want run %d", run, second)
	}
}

func TestProbesForUnknownRun(t *testing.T) {
	repo := newTestRepository(t)

	probes, err := repo.ProbesForRun(context.Background(), 9999)
	if err != nil {
		t.Fatalf("ProbesForRun() error: %v", err)
	}
	if len(probes) != 0 {
		t.Errorf("ProbesForRun() = %v, want empty", probes)
	}
}
