package ddns

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Default artifact file names, relative to the working directory.
const (
	DefaultDiagnosticsFile = "full_responses.txt"
	DefaultAllFile         = "proxyip.txt"
	DefaultStandardFile    = "standard_ports.txt"
	DefaultNonStandardFile = "non_standard_ports.txt"
	DefaultPreferredFile   = "preferred.txt"
)

// DiagnosticsSink is the append-only full-diagnostics log. One block
// is written per probed candidate, including failures that never reach
// the ranked outputs, so operators can audit exactly what the check
// endpoint returned. Workers append concurrently; every append runs
// under a single lock with open-append-close scope so blocks either
// fully land or are absent, never interleaved.
type DiagnosticsSink struct {
	path   string
	logger *logrus.Logger

	mu sync.Mutex
}

// NewDiagnosticsSink truncates (or creates) the diagnostics file for a
// fresh run and returns the sink. The previous run's content is gone
// after this call.
func NewDiagnosticsSink(path string, logger *logrus.Logger) (*DiagnosticsSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("truncating diagnostics file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &DiagnosticsSink{path: path, logger: logger}, nil
}

// Path returns the diagnostics file location.
func (s *DiagnosticsSink) Path() string {
	return s.path
}

// Record appends one diagnostic block for the outcome. Write failures
// are logged and swallowed: a broken diagnostics log must not abort
// probing of the remaining candidates.
func (s *DiagnosticsSink) Record(out Outcome) {
	block := formatDiagnosticBlock(out)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Warn("cannot open diagnostics file")
		}
		return
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil && s.logger != nil {
		s.logger.WithError(err).Warn("cannot append to diagnostics file")
	}
}

func formatDiagnosticBlock(out Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- proxy: %s ---\n", out.Display)
	b.WriteString("check result:\n")
	fmt.Fprintf(&b, "STDOUT: %s\n", out.RawBody)
	fmt.Fprintf(&b, "STDERR: %s\n", out.ErrText)
	fmt.Fprintf(&b, "Return Code: %d\n\n", out.ReturnCode())
	return b.String()
}

// WriteEntries writes one ranked entry per line to path, fully
// replacing any prior content. An empty entry set writes an empty
// file rather than leaving stale results behind.
func WriteEntries(path string, entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// OutputFiles names the destinations of the four ranked deliverables.
type OutputFiles struct {
	All         string
	Standard    string
	NonStandard string
	Preferred   string
}

// DefaultOutputFiles returns the conventional artifact names.
func DefaultOutputFiles() OutputFiles {
	return OutputFiles{
		All:         DefaultAllFile,
		Standard:    DefaultStandardFile,
		NonStandard: DefaultNonStandardFile,
		Preferred:   DefaultPreferredFile,
	}
}

// WritePartitions persists every partition to its file. These are the
// pipeline's primary deliverables, so the first failure is returned to
// the caller instead of being swallowed.
func WritePartitions(files OutputFiles, parts Partitions, preferred []Entry) error {
	if err := WriteEntries(files.All, parts.All); err != nil {
		return err
	}
	if err := WriteEntries(files.Standard, parts.Standard); err != nil {
		return err
	}
	if err := WriteEntries(files.NonStandard, parts.NonStandard); err != nil {
		return err
	}
	return WriteEntries(files.Preferred, preferred)
}

// LogSummary reports the per-partition counts and destinations. Empty
// partitions are reported explicitly so a silent run cannot be
// mistaken for a successful one.
func LogSummary(logger *logrus.Logger, files OutputFiles, parts Partitions, preferred []Entry) {
	if logger == nil {
		return
	}
	logPartition(logger, "all successful", files.All, len(parts.All))
	logPartition(logger, "standard ports", files.Standard, len(parts.Standard))
	logPartition(logger, "non-standard ports", files.NonStandard, len(parts.NonStandard))
	logPartition(logger, "preferred", files.Preferred, len(preferred))
}

func logPartition(logger *logrus.Logger, name, path string, count int) {
	entry := logger.WithFields(logrus.Fields{
		"partition": name,
		"file":      path,
		"count":     count,
	})
	if count == 0 {
		entry.Info("no candidates of this class")
		return
	}
	entry.Info("partition written")
}
