package ddns

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrEmptySource is returned when, after parsing and filtering, the
	// candidate source yields no usable candidates. This aborts the run
	// before any probing starts.
	ErrEmptySource = fmt.Errorf("no usable candidates in source")
	// ErrNoSource is returned when none of the configured source
	// locations can be found.
	ErrNoSource = fmt.Errorf("no candidate source found")
)

// Candidate is one ip/port pair proposed as a proxy endpoint to test.
// Candidates are immutable once loaded; duplicates in the source are
// passed through untouched.
type Candidate struct {
	IP        string
	Port      uint16
	Geography string
}

// HostPort returns the candidate in "ip:port" form.
func (c Candidate) HostPort() string {
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

// SourceKind identifies the raw format a candidate source uses.
type SourceKind int

const (
	// SourcePairs is a headerless file with one whitespace-separated
	// "ip port" pair per line.
	SourcePairs SourceKind = iota
	// SourceTable is a CSV file with a header row containing ip, port
	// and optionally country_name columns (case-insensitive).
	SourceTable
)

func (k SourceKind) String() string {
	switch k {
	case SourcePairs:
		return "pairs"
	case SourceTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Source is a candidate source resolved once at startup. The kind is
// never re-derived mid-run.
type Source struct {
	Kind SourceKind
	Path string
}

// ResolveSource probes the configured source locations in order: the
// pair file wins if it exists, then the tabular file. It returns
// ErrNoSource when neither is present.
func ResolveSource(pairsPath, tablePath string) (Source, error) {
	if pairsPath != "" {
		if _, err := os.Stat(pairsPath); err == nil {
			return Source{Kind: SourcePairs, Path: pairsPath}, nil
		}
	}
	if tablePath != "" {
		if _, err := os.Stat(tablePath); err == nil {
			return Source{Kind: SourceTable, Path: tablePath}, nil
		}
	}
	return Source{}, fmt.Errorf("%w: tried %q and %q", ErrNoSource, pairsPath, tablePath)
}

// LoadStats reports what happened while reading a candidate source.
type LoadStats struct {
	Loaded   int // candidates produced
	Skipped  int // rows dropped because ip/port was unusable
	Filtered int // rows dropped by the geography filter
}

// LoadCandidates reads the source and produces the ordered candidate
// set. Rows with a missing or non-numeric port are skipped, not
// errors. When geography is non-empty, rows whose tag does not match
// (case-insensitive) are dropped. A source that yields zero candidates
// returns ErrEmptySource.
func LoadCandidates(src Source, geography string) ([]Candidate, LoadStats, error) {
	var (
		cands []Candidate
		stats LoadStats
		err   error
	)

	switch src.Kind {
	case SourcePairs:
		cands, stats, err = loadPairs(src.Path, geography)
	case SourceTable:
		cands, stats, err = loadTable(src.Path, geography)
	default:
		return nil, stats, fmt.Errorf("unknown source kind %v", src.Kind)
	}
	if err != nil {
		return nil, stats, err
	}

	if len(cands) == 0 {
		return nil, stats, fmt.Errorf("%w: %s", ErrEmptySource, src.Path)
	}
	return cands, stats, nil
}

func loadPairs(path, geography string) ([]Candidate, LoadStats, error) {
	var stats LoadStats

	lines, err := readListLines(path)
	if err != nil {
		return nil, stats, fmt.Errorf("reading pair file: %w", err)
	}

	var cands []Candidate
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			stats.Skipped++
			continue
		}
		cand, ok := makeCandidate(fields[0], fields[1], "")
		if !ok {
			stats.Skipped++
			continue
		}
		if geography != "" && !strings.EqualFold(cand.Geography, geography) {
			stats.Filtered++
			continue
		}
		cands = append(cands, cand)
		stats.Loaded++
	}
	return cands, stats, nil
}

func loadTable(path, geography string) ([]Candidate, LoadStats, error) {
	var stats LoadStats

	f, err := openListFile(path)
	if err != nil {
		return nil, stats, fmt.Errorf("opening table file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows may carry extra columns

	header, err := r.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("reading table header: %w", err)
	}

	ipIdx, portIdx, geoIdx := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "ip":
			ipIdx = i
		case "port":
			portIdx = i
		case "country_name":
			geoIdx = i
		}
	}
	if ipIdx < 0 || portIdx < 0 {
		return nil, stats, fmt.Errorf("table %s has no ip/port columns", path)
	}

	var cands []Candidate
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// one bad row must not kill the whole source
			stats.Skipped++
			continue
		}
		if len(row) <= ipIdx || len(row) <= portIdx {
			stats.Skipped++
			continue
		}
		geo := ""
		if geoIdx >= 0 && len(row) > geoIdx {
			geo = strings.TrimSpace(row[geoIdx])
		}
		cand, ok := makeCandidate(row[ipIdx], row[portIdx], geo)
		if !ok {
			stats.Skipped++
			continue
		}
		if geography != "" && !strings.EqualFold(cand.Geography, geography) {
			stats.Filtered++
			continue
		}
		cands = append(cands, cand)
		stats.Loaded++
	}
	return cands, stats, nil
}

// makeCandidate validates and normalizes one raw ip/port pair. The
// port must be a well-formed base-10 integer that fits in 16 bits.
func makeCandidate(rawIP, rawPort, geo string) (Candidate, bool) {
	ip := strings.TrimSpace(rawIP)
	portStr := strings.TrimSpace(rawPort)
	if ip == "" || portStr == "" {
		return Candidate{}, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Candidate{}, false
	}
	return Candidate{IP: ip, Port: uint16(port), Geography: geo}, true
}
