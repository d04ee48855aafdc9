package ddns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCheckURL is the health-check endpoint queried for each
	// candidate.
	DefaultCheckURL = "https://check.proxyip.eytan.qzz.io/check"
	// DefaultCheckTimeout bounds each individual probe call.
	DefaultCheckTimeout = 10 * time.Second
	// UnknownLatency is the sentinel the check service reports when it
	// could not measure a response time.
	UnknownLatency = -1
)

// Status classifies the outcome of a single probe call.
type Status int

const (
	// StatusSuccess means the call completed and the body parsed. It
	// does not by itself imply a usable proxy; see Outcome.Succeeded.
	StatusSuccess Status = iota
	// StatusTimeout means the call exceeded the probe timeout.
	StatusTimeout
	// StatusTransportError covers DNS failures, refused connections
	// and other transport-level errors.
	StatusTransportError
	// StatusParseError means the response body was not valid JSON.
	StatusParseError
	// StatusMalformedInput means the candidate itself was unusable and
	// no network call was made.
	StatusMalformedInput
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusTransportError:
		return "transport-error"
	case StatusParseError:
		return "parse-error"
	case StatusMalformedInput:
		return "malformed-input"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CheckResponse mirrors the JSON body returned by the check service.
// ResponseTime is a pointer so a missing field can be told apart from
// a measured zero.
type CheckResponse struct {
	Success      bool   `json:"success"`
	ResponseTime *int   `json:"responseTime"`
	ProxyIP      string `json:"proxyIP"`
	PortRemote   int    `json:"portRemote"`
	Error        string `json:"error"`
}

// Outcome is the record of one probe. Exactly one Outcome is produced
// per candidate and it is never mutated after creation.
type Outcome struct {
	Candidate Candidate
	// Display is the endpoint to show in logs and diagnostics. It is
	// the server-observed pair when the check service reports one,
	// the requested pair otherwise. Never used as an aggregation key.
	Display string
	RawBody string
	ErrText string
	Status  Status
	// LatencyMs is UnknownLatency unless the service measured one.
	LatencyMs int
	// Succeeded is true iff the service reported success and a
	// measured, non-sentinel latency.
	Succeeded bool
	// ReportedSuccess is the service's raw success flag, regardless of
	// whether a latency was measured. The DNS-refresh workflow keys
	// off this.
	ReportedSuccess bool
}

// ReturnCode is the numeric status recorded in the diagnostics log:
// 0 when the call completed and parsed, 1 otherwise.
func (o Outcome) ReturnCode() int {
	if o.Status == StatusSuccess {
		return 0
	}
	return 1
}

// ProbeClient is the seam between the scheduler and the probe
// implementation. It exists so tests and special deployments can
// substitute the HTTP checker.
type ProbeClient interface {
	Check(ctx context.Context, cand Candidate) Outcome
}

// Checker probes candidates against the external health-check
// endpoint over HTTP. The zero value is not usable; call NewChecker.
type Checker struct {
	// BaseURL is the check endpoint without query parameters.
	BaseURL string
	// Timeout bounds each call. Defaults to DefaultCheckTimeout.
	Timeout time.Duration
	// HTTPClient may be replaced to customize transport behavior.
	HTTPClient *http.Client
	// Logger, when set, receives per-probe debug detail.
	Logger *logrus.Logger
}

var _ ProbeClient = (*Checker)(nil)

// NewChecker returns a Checker against the given endpoint, or the
// default endpoint when baseURL is empty.
func NewChecker(baseURL string) *Checker {
	if baseURL == "" {
		baseURL = DefaultCheckURL
	}
	return &Checker{
		BaseURL:    baseURL,
		Timeout:    DefaultCheckTimeout,
		HTTPClient: &http.Client{},
	}
}

// Check probes one candidate. It never returns an error: every call,
// success or failure, yields exactly one classified Outcome, so one
// misbehaving candidate can never abort the pipeline.
func (c *Checker) Check(ctx context.Context, cand Candidate) Outcome {
	out := Outcome{
		Candidate: cand,
		Display:   cand.HostPort(),
		LatencyMs: UnknownLatency,
	}

	if cand.IP == "" || cand.Port == 0 {
		out.Status = StatusMalformedInput
		out.ErrText = "invalid candidate: missing ip or port"
		return out
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	// The probe deadline is independent of run cancellation: once a
	// probe is in flight it completes or hits its own timeout, never a
	// caller-injected "context canceled".
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	checkURL := c.BaseURL + "?proxyip=" + url.QueryEscape(cand.HostPort())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		out.Status = StatusTransportError
		out.ErrText = err.Error()
		return out
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		out.Status, out.ErrText = classifyTransportError(err)
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Status, out.ErrText = classifyTransportError(err)
		return out
	}
	out.RawBody = strings.TrimSpace(string(body))

	var parsed CheckResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		out.Status = StatusParseError
		out.ErrText = "response body is not valid JSON"
		return out
	}

	if parsed.ProxyIP != "" {
		port := parsed.PortRemote
		if port <= 0 {
			port = int(cand.Port)
		}
		out.Display = fmt.Sprintf("%s:%d", parsed.ProxyIP, port)
	}

	out.Status = StatusSuccess
	out.ErrText = parsed.Error
	out.ReportedSuccess = parsed.Success
	if parsed.ResponseTime != nil {
		out.LatencyMs = *parsed.ResponseTime
	}
	out.Succeeded = parsed.Success && out.LatencyMs != UnknownLatency

	if c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{
			"candidate": cand.HostPort(),
			"display":   out.Display,
			"succeeded": out.Succeeded,
			"latency":   out.LatencyMs,
		}).Debug("probe completed")
	}
	return out
}

// classifyTransportError separates timeouts from other transport
// failures.
func classifyTransportError(err error) (Status, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout, "request timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout, "request timed out"
	}
	return StatusTransportError, err.Error()
}
