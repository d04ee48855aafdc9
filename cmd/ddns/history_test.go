package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/laityts/ddns"
	historysqlite "github.com/laityts/ddns/history/sqlite"
)

func TestRenderLastRun(t *testing.T) {
	repo, err := historysqlite.New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("opening history database: %v", err)
	}
	defer repo.Close()

	var empty bytes.Buffer
	if err := renderLastRun(&empty, repo, true); err != nil {
		t.Fatalf("renderLastRun() error: %v", err)
	}
	if !strings.Contains(empty.String(), "no runs recorded") {
		t.Errorf("empty database output = %q", empty.String())
	}

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
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
	runID, err := repo.RecordRun(context.Background(), started, started.Add(time.Minute), outcomes)
	if err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}

	var withProbes bytes.Buffer
	if err := renderLastRun(&withProbes, repo, true); err != nil {
		t.Fatalf("renderLastRun() error: %v", err)
	}
	got := withProbes.String()
	for _, fragment := range []string{
		fmt.Sprintf("run %d:", runID),
		"probed 2",
		"succeeded 1",
		"1.2.3.4",
		"5.6.7.8",
		"timeout",
	} {
		if !strings.Contains(got, fragment) {
			t.Errorf("output missing %q:\n%s", fragment, got)
		}
	}

	var summaryOnly bytes.Buffer
	if err := renderLastRun(&summaryOnly, repo, false); err != nil {
		t.Fatalf("renderLastRun() error: %v", err)
	}
	if strings.Contains(summaryOnly.String(), "1.2.3.4") {
		t.Errorf("summary output lists probes:\n%s", summaryOnly.String())
	}
}
