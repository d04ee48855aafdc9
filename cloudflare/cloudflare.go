// Package cloudflare is a minimal client for the Cloudflare v4 DNS
// records API, covering only the operations the refresh workflow
// needs: list, create and delete A records within one zone. It uses
// the legacy email + global-key authentication scheme.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

const requestTimeout = 30 * time.Second

// Record is one DNS record as returned by the API. Only the fields
// this client manages are mapped.
type Record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the uniform response wrapper the v4 API uses.
type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// Client talks to the records API for a single zone.
type Client struct {
	baseURL   string
	zoneID    string
	authEmail string
	authKey   string
	httpc     *http.Client
}

// New returns a client for the given zone using legacy API
// credentials.
func New(zoneID, authEmail, authKey string) *Client {
	return &Client{
		baseURL:   DefaultBaseURL,
		zoneID:    zoneID,
		authEmail: authEmail,
		authKey:   authKey,
		httpc:     &http.Client{Timeout: requestTimeout},
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// ListRecords returns the zone's A records for the given fully
// qualified name.
func (c *Client) ListRecords(ctx context.Context, domain string) ([]Record, error) {
	params := url.Values{}
	params.Set("type", "A")
	params.Set("name", domain)

	result, err := c.do(ctx, http.MethodGet, "/dns_records?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing dns records")
	}

	var records []Record
	if err := json.Unmarshal(result, &records); err != nil {
		return nil, errors.Wrap(err, "decoding dns records")
	}
	return records, nil
}

// CreateRecord adds an unproxied A record with automatic TTL pointing
// the domain at ip.
func (c *Client) CreateRecord(ctx context.Context, domain, ip string) error {
	payload := map[string]interface{}{
		"type":    "A",
		"name":    domain,
		"content": ip,
		"ttl":     1, // automatic
		"proxied": false,
	}
	_, err := c.do(ctx, http.MethodPost, "/dns_records", payload)
	return errors.Wrapf(err, "creating dns record %s", ip)
}

// DeleteRecord removes the record with the given id.
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/dns_records/"+id, nil)
	return errors.Wrapf(err, "deleting dns record %s", id)
}

// do issues one API call against the zone and unwraps the response
// envelope, returning the raw result payload.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}

	endpoint := fmt.Sprintf("%s/zones/%s%s", c.baseURL, c.zoneID, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Email", c.authEmail)
	req.Header.Set("X-Auth-Key", c.authKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrapf(err, "decoding response (http %d)", resp.StatusCode)
	}
	if !env.Success {
		if len(env.Errors) > 0 {
			return nil, errors.Errorf("api error %d: %s", env.Errors[0].Code, env.Errors[0].Message)
		}
		return nil, errors.Errorf("api call failed (http %d)", resp.StatusCode)
	}
	return env.Result, nil
}
