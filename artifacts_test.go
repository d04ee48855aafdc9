package ddns

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// countDiagnosticBlocks counts the per-candidate block headers in the
// diagnostics file at path.
func countDiagnosticBlocks(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading diagnostics file: %v", err)
	}
	return strings.Count(string(data), "--- proxy:")
}

func TestDiagnosticsSinkTruncatesOnOpen(t *testing.T) {
	path := writeFile(t, "diag.txt", "leftover from a previous run\n")

	sink, err := NewDiagnosticsSink(path, nil)
	if err != nil {
		t.Fatalf("NewDiagnosticsSink() error: %v", err)
	}
	if sink.Path() != path {
		t.Errorf("Path() = %q, want %q", sink.Path(), path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("file not truncated, content: %q", data)
	}
}

func TestDiagnosticsSinkBlockFormat(t *testing.T) {
	path := writeFile(t, "diag.txt", "")
	sink, err := NewDiagnosticsSink(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	sink.Record(Outcome{
		Candidate: Candidate{IP: "1.2.3.4", Port: 443},
		Display:   "1.2.3.4:443",
		RawBody:   `{"success":true,"responseTime":50}`,
		Status:    StatusSuccess,
		LatencyMs: 50,
		Succeeded: true,
	})
	sink.Record(Outcome{
		Candidate: Candidate{IP: "5.6.7.8", Port: 9999},
		Display:   "5.6.7.8:9999",
		ErrText:   "context deadline exceeded",
		Status:    StatusTimeout,
		LatencyMs: UnknownLatency,
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)

	want := "\n--- proxy: 1.2.3.4:443 ---\n" +
		"check result:\n" +
		"STDOUT: {\"success\":true,\"responseTime\":50}\n" +
		"STDERR: \n" +
		"Return Code: 0\n\n" +
		"\n--- proxy: 5.6.7.8:9999 ---\n" +
		"check result:\n" +
		"STDOUT: \n" +
		"STDERR: context deadline exceeded\n" +
		"Return Code: 1\n\n"
	if got != want {
		t.Errorf("diagnostics content mismatch:\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestDiagnosticsSinkConcurrentAppends(t *testing.T) {
	path := writeFile(t, "diag.txt", "")
	sink, err := NewDiagnosticsSink(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sink.Record(Outcome{
				Candidate: Candidate{IP: "10.0.0.1", Port: uint16(1000 + n)},
				Display:   Candidate{IP: "10.0.0.1", Port: uint16(1000 + n)}.HostPort(),
				RawBody:   strings.Repeat("x", 256),
				Status:    StatusSuccess,
			})
		}(i)
	}
	wg.Wait()

	if got := countDiagnosticBlocks(t, path); got != writers {
		t.Errorf("diagnostics file has %d blocks, want %d", got, writers)
	}

	// no torn writes: every block carries its full trailer
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "Return Code:"); got != writers {
		t.Errorf("found %d trailers, want %d", got, writers)
	}
}

func TestWriteEntriesReplacesContent(t *testing.T) {
	path := writeFile(t, "proxyip.txt", "0.0.0.0:1#1ms\nstale\n")

	entries := []Entry{
		{IP: "1.2.3.4", Port: 443, LatencyMs: 50},
		{IP: "5.6.7.8", Port: 9999, LatencyMs: 120},
	}
	if err := WriteEntries(path, entries); err != nil {
		t.Fatalf("WriteEntries() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "1.2.3.4:443#50ms\n5.6.7.8:9999#120ms\n"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", data, want)
	}
}

func TestWriteEntriesEmptySetWritesEmptyFile(t *testing.T) {
	path := writeFile(t, "preferred.txt", "stale entry\n")

	if err := WriteEntries(path, nil); err != nil {
		t.Fatalf("WriteEntries() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("file content = %q, want empty", data)
	}
}

func TestWritePartitions(t *testing.T) {
	dir := t.TempDir()
	files := OutputFiles{
		All:         filepath.Join(dir, "proxyip.txt"),
		Standard:    filepath.Join(dir, "standard_ports.txt"),
		NonStandard: filepath.Join(dir, "non_standard_ports.txt"),
		Preferred:   filepath.Join(dir, "preferred.txt"),
	}
	parts := Partitions{
		All: []Entry{
			{IP: "1.2.3.4", Port: 443, LatencyMs: 50},
			{IP: "5.6.7.8", Port: 9999, LatencyMs: 80},
		},
		Standard:    []Entry{{IP: "1.2.3.4", Port: 443, LatencyMs: 50}},
		NonStandard: []Entry{{IP: "5.6.7.8", Port: 9999, LatencyMs: 80}},
	}
	preferred := []Entry{{IP: "1.2.3.4", Port: 443, LatencyMs: 50}}

	if err := WritePartitions(files, parts, preferred); err != nil {
		t.Fatalf("WritePartitions() error: %v", err)
	}

	checks := []struct {
		path string
		want string
	}{
		{files.All, "1.2.3.4:443#50ms\n5.6.7.8:9999#80ms\n"},
		{files.Standard, "1.2.3.4:443#50ms\n"},
		{files.NonStandard, "5.6.7.8:9999#80ms\n"},
		{files.Preferred, "1.2.3.4:443#50ms\n"},
	}
	for _, c := range checks {
		data, err := os.ReadFile(c.path)
		if err != nil {
			t.Errorf("reading %s: %v", c.path, err)
			continue
		}
		if string(data) != c.want {
			t.Errorf("%s content = %q, want %q", filepath.Base(c.path), data, c.want)
		}
	}
}

func TestWritePartitionsReportsFirstError(t *testing.T) {
	dir := t.TempDir()
	files := OutputFiles{
		All:         filepath.Join(dir, "missing", "proxyip.txt"),
		Standard:    filepath.Join(dir, "standard_ports.txt"),
		NonStandard: filepath.Join(dir, "non_standard_ports.txt"),
		Preferred:   filepath.Join(dir, "preferred.txt"),
	}
	if err := WritePartitions(files, Partitions{}, nil); err == nil {
		t.Fatal("WritePartitions() returned nil for unwritable destination")
	}
}
