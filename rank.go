package ddns

import (
	"fmt"
	"sort"
)

// StandardPorts is the fixed set of Cloudflare-compatible HTTP(S)
// ports used to split the success set into the standard and
// non-standard partitions.
var StandardPorts = map[uint16]struct{}{
	80:   {},
	443:  {},
	2052: {},
	2053: {},
	2082: {},
	2083: {},
	2086: {},
	2087: {},
	2095: {},
	2096: {},
	8080: {},
	8443: {},
	8880: {},
}

// IsStandardPort reports whether port belongs to the standard set.
func IsStandardPort(port uint16) bool {
	_, ok := StandardPorts[port]
	return ok
}

// Entry is one ranked proxy, a projection of a successful Outcome.
type Entry struct {
	IP        string
	Port      uint16
	LatencyMs int
}

// String renders the entry in the "ip:port#<latency>ms" list format.
func (e Entry) String() string {
	return fmt.Sprintf("%s:%d#%dms", e.IP, e.Port, e.LatencyMs)
}

// Partitions holds the ranked output lists derived from one probe run.
// Standard and NonStandard together are a total partition of All.
type Partitions struct {
	// All contains every successful probe, ascending by latency.
	All []Entry
	// Standard holds the standard-port subset ordered by
	// (port, latency).
	Standard []Entry
	// NonStandard holds the remaining ports, same ordering.
	NonStandard []Entry
}

// Rank consumes the full outcome stream after the scheduler has
// finished and derives the ranked partitions. Only outcomes with
// Succeeded set contribute; ranking keys always use the requested
// candidate pair, never the server-observed endpoint.
func Rank(outcomes []Outcome) Partitions {
	all := make([]Entry, 0, len(outcomes))
	for _, out := range outcomes {
		if !out.Succeeded || out.LatencyMs == UnknownLatency {
			continue
		}
		all = append(all, Entry{
			IP:        out.Candidate.IP,
			Port:      out.Candidate.Port,
			LatencyMs: out.LatencyMs,
		})
	}

	// stable: ties keep encounter order
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].LatencyMs < all[j].LatencyMs
	})

	var standard, nonStandard []Entry
	for _, e := range all {
		if IsStandardPort(e.Port) {
			standard = append(standard, e)
		} else {
			nonStandard = append(nonStandard, e)
		}
	}
	sortByPortThenLatency(standard)
	sortByPortThenLatency(nonStandard)

	return Partitions{All: all, Standard: standard, NonStandard: nonStandard}
}

func sortByPortThenLatency(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Port != entries[j].Port {
			return entries[i].Port < entries[j].Port
		}
		return entries[i].LatencyMs < entries[j].LatencyMs
	})
}

// PreferredFilter derives the preferred shortlist from the
// all-successful partition. The shortlist feeds the DNS-refresh
// workflow as its pool of replacement candidates.
type PreferredFilter struct {
	// MaxLatencyMs is the exclusive latency ceiling; an entry survives
	// only if its latency is strictly below it. Values <= 0 disable
	// the ceiling.
	MaxLatencyMs int
	// Ports is the optional allow-list. When non-empty an entry must
	// also match one of these ports.
	Ports []uint16
}

// Apply filters the all-successful entries into the preferred
// shortlist. With an active allow-list the result is ordered by
// (port, latency); otherwise by latency alone. An empty result is not
// an error: it means no replacement candidates are available.
func (f PreferredFilter) Apply(all []Entry) []Entry {
	allowed := make(map[uint16]struct{}, len(f.Ports))
	for _, p := range f.Ports {
		allowed[p] = struct{}{}
	}

	var preferred []Entry
	for _, e := range all {
		if f.MaxLatencyMs > 0 && e.LatencyMs >= f.MaxLatencyMs {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[e.Port]; !ok {
				continue
			}
		}
		preferred = append(preferred, e)
	}

	if len(allowed) > 0 {
		sortByPortThenLatency(preferred)
	} else {
		sort.SliceStable(preferred, func(i, j int) bool {
			return preferred[i].LatencyMs < preferred[j].LatencyMs
		})
	}
	return preferred
}
