package ddns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Record is a zone A record as the refresh workflow sees it.
type Record struct {
	ID string
	IP string
}

// RecordStore is the zone DNS-record client the refresh workflow
// drives. Implementations must return errors rather than panic past
// this boundary.
type RecordStore interface {
	ListRecords(ctx context.Context, domain string) ([]Record, error)
	DeleteRecord(ctx context.Context, id string) error
	CreateRecord(ctx context.Context, domain, ip string) error
}

// Notifier is a best-effort notification sink. Send failures are
// reported through the bool; they never block or fail the workflow.
type Notifier interface {
	Notify(ctx context.Context, domain, message string) bool
}

// FailedRecord describes a record that failed its liveness probe.
type FailedRecord struct {
	IP     string
	Reason string
}

// RefreshReport summarizes one refresh pass.
type RefreshReport struct {
	Healthy []string
	Failed  []FailedRecord
	Deleted int
	Added   int
	Skipped []string
}

// Refresher replaces failed zone A records with known-good candidates
// drawn from the preferred shortlist file.
type Refresher struct {
	Store  RecordStore
	Client ProbeClient
	// Notifier is optional; nil disables notifications.
	Notifier Notifier
	Domain   string
	// CheckPort is the port each record IP is probed on.
	CheckPort uint16
	// PreferredFile is the ranked shortlist the replacements come
	// from, one "ip:port#<latency>ms" line per candidate.
	PreferredFile string
	// Pause spaces consecutive probe and API calls. Defaults to one
	// second when zero.
	Pause  time.Duration
	Logger *logrus.Logger
}

// Run performs one refresh pass: probe every A record, delete the
// failed ones, and create one replacement per deletion from the
// preferred shortlist, skipping IPs already present on healthy
// records. The pass is best-effort past the initial listing; partial
// failures are reflected in the report, not returned as errors.
func (r *Refresher) Run(ctx context.Context) (*RefreshReport, error) {
	records, err := r.Store.ListRecords(ctx, r.Domain)
	if err != nil {
		return nil, fmt.Errorf("listing records for %s: %w", r.Domain, err)
	}

	report := &RefreshReport{}
	if len(records) == 0 {
		r.logInfo("no A records found; nothing to refresh")
		return report, nil
	}

	pause := r.Pause
	if pause <= 0 {
		pause = time.Second
	}

	var failed []Record
	for i, rec := range records {
		out := r.Client.Check(ctx, Candidate{IP: rec.IP, Port: r.CheckPort})
		// Health here follows the endpoint's own success flag; an
		// unmeasured latency does not fail a record that answered.
		if out.Status == StatusSuccess && out.ReportedSuccess {
			report.Healthy = append(report.Healthy, rec.IP)
		} else {
			reason := out.ErrText
			if reason == "" {
				reason = out.Status.String()
			}
			report.Failed = append(report.Failed, FailedRecord{IP: rec.IP, Reason: reason})
			failed = append(failed, rec)
		}
		if i < len(records)-1 && !sleepCtx(ctx, pause) {
			break
		}
	}

	for _, rec := range failed {
		if err := r.Store.DeleteRecord(ctx, rec.ID); err != nil {
			r.logWarn(err, "deleting record "+rec.IP)
			continue
		}
		report.Deleted++
		sleepCtx(ctx, pause)
	}

	if report.Deleted > 0 {
		replacements, skipped := r.pickReplacements(report.Deleted, report.Healthy)
		report.Skipped = skipped
		for _, ip := range replacements {
			if err := r.Store.CreateRecord(ctx, r.Domain, ip); err != nil {
				r.logWarn(err, "creating record "+ip)
				continue
			}
			report.Added++
			sleepCtx(ctx, pause)
		}
	}

	if r.Notifier != nil && (len(report.Failed) > 0 || report.Deleted > 0 || report.Added > 0) {
		r.Notifier.Notify(ctx, r.Domain, report.Message())
	}

	r.logReport(report)
	return report, nil
}

// pickReplacements reads the preferred shortlist and selects up to
// count IPs not already present on healthy records. It returns the
// selection plus the duplicates that were skipped.
func (r *Refresher) pickReplacements(count int, existing []string) ([]string, []string) {
	lines, err := readListLines(r.PreferredFile)
	if err != nil {
		r.logWarn(err, "reading preferred shortlist")
		return nil, nil
	}

	taken := make(map[string]struct{}, len(existing))
	for _, ip := range existing {
		taken[ip] = struct{}{}
	}

	var selected, skipped []string
	for _, line := range lines {
		ip, ok := parsePreferredIP(line)
		if !ok {
			continue
		}
		if _, dup := taken[ip]; dup {
			skipped = append(skipped, ip)
			continue
		}
		taken[ip] = struct{}{}
		selected = append(selected, ip)
		if len(selected) == count {
			break
		}
	}
	return selected, skipped
}

// parsePreferredIP extracts the IPv4 address from one shortlist line
// of the form "ip:port#<latency>ms". A line without a colon is treated
// as a bare IP.
func parsePreferredIP(line string) (string, bool) {
	ip := line
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		ip = line[:idx]
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return "", false
	}
	return ip, true
}

// Message renders the report as the notification body.
func (m *RefreshReport) Message() string {
	var lines []string
	if len(m.Failed) > 0 {
		lines = append(lines, "failed health checks:")
		for _, f := range m.Failed {
			lines = append(lines, fmt.Sprintf("  - %s (%s)", f.IP, f.Reason))
		}
	}
	if m.Deleted > 0 {
		lines = append(lines, fmt.Sprintf("deleted records: %d", m.Deleted))
	}
	if m.Added > 0 {
		lines = append(lines, fmt.Sprintf("added records: %d", m.Added))
	}
	if len(m.Skipped) > 0 {
		lines = append(lines, fmt.Sprintf("skipped duplicate IPs: %s", strings.Join(m.Skipped, ", ")))
	}
	if len(lines) == 0 {
		lines = append(lines, "all records healthy")
	}
	return strings.Join(lines, "\n")
}

// sleepCtx pauses for d unless the context ends first. It reports
// whether the full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (r *Refresher) logInfo(msg string) {
	if r.Logger != nil {
		r.Logger.WithField("domain", r.Domain).Info(msg)
	}
}

func (r *Refresher) logWarn(err error, msg string) {
	if r.Logger != nil {
		r.Logger.WithError(err).Warn(msg)
	}
}

func (r *Refresher) logReport(report *RefreshReport) {
	if r.Logger == nil {
		return
	}
	r.Logger.WithFields(logrus.Fields{
		"domain":  r.Domain,
		"healthy": len(report.Healthy),
		"failed":  len(report.Failed),
		"deleted": report.Deleted,
		"added":   report.Added,
		"skipped": len(report.Skipped),
	}).Info("refresh pass completed")
}
