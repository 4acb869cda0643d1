// Package compute is the HTTP client of the remote geometry service.
//
// Requests are POSTed as application/x-www-form-urlencoded with the JSON
// request body in a single "data" field. Responses use the envelope
// {"success": bool, "data": ...}. Calls are never retried here; callers
// decide what a failure means.
package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/regionplay/internal/logger"
	"github.com/Mr-Dark-debug/regionplay/internal/metrics"
	"github.com/Mr-Dark-debug/regionplay/internal/region"
)

// ErrUnsuccessful is returned when the service answers success=false.
var ErrUnsuccessful = errors.New("compute service reported failure")

// Endpoint paths.
const (
	PathIntersections = "/api/find_intersections"
	PathUnions        = "/api/find_unions"
	PathDifference    = "/api/find_difference"
	PathInterpolate   = "/api/find_interpolated_regions"
	PathRegionAtTime  = "/api/find_region_at_time"
	PathCombine       = "/api/combine_regions"
	PathManage        = "/api/manage_region"
	PathRestore       = "/api/restore_session"
	PathClear         = "/api/clear_session"
)

// Manage actions.
const (
	ActionAdd     = "add"
	ActionDelete  = "delete"
	ActionSelect  = "select"
	ActionVisible = "visible"
)

// ManageRequest mirrors one region change to the server session. Path and
// Computation are only sent with ActionAdd.
type ManageRequest struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	Path        region.RingSet `json:"path,omitempty"`
	Computation *string        `json:"computation,omitempty"`
}

// NewAdd builds an add request carrying the full geometry.
func NewAdd(r region.Region) ManageRequest {
	comp := r.Computation
	return ManageRequest{ID: r.ID, Action: ActionAdd, Path: r.Geometry, Computation: &comp}
}

// RestoredRegion is one entry of a restored session.
type RestoredRegion struct {
	ID          string         `json:"id"`
	Coords      region.RingSet `json:"coords"`
	Computation string         `json:"computation"`
	Visible     *bool          `json:"visible,omitempty"`
	StartTime   *int           `json:"startTime,omitempty"`
	EndTime     *int           `json:"endTime,omitempty"`
}

// Region converts the entry into a registry region. Entries labelled as
// interpolated and carrying both times become 3D regions.
func (rr RestoredRegion) Region() region.Region {
	r := region.New(rr.Coords, rr.Computation)
	if rr.Computation == region.ComputationInterpolated && rr.StartTime != nil && rr.EndTime != nil {
		r = region.NewEnvelope(rr.Coords, *rr.StartTime, *rr.EndTime)
	}
	r.ID = rr.ID
	if rr.Visible != nil {
		r.Visible = *rr.Visible
	}
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the compute service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.L()
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// FindIntersections returns the intersections of the selected regions.
func (c *Client) FindIntersections(ctx context.Context) ([]region.RingSet, error) {
	return c.ringSets(ctx, PathIntersections)
}

// FindUnions returns the unions of the selected regions.
func (c *Client) FindUnions(ctx context.Context) ([]region.RingSet, error) {
	return c.ringSets(ctx, PathUnions)
}

// FindDifference returns the difference of the selected regions.
func (c *Client) FindDifference(ctx context.Context) ([]region.RingSet, error) {
	return c.ringSets(ctx, PathDifference)
}

// FindInterpolatedRegions interpolates the selected regions over
// [start, end] and returns the envelope geometry.
func (c *Client) FindInterpolatedRegions(ctx context.Context, start, end int) (region.RingSet, error) {
	req := struct {
		StartTime int `json:"startTime"`
		EndTime   int `json:"endTime"`
	}{start, end}
	var out region.RingSet
	if err := c.call(ctx, PathInterpolate, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindRegionAtTime returns the frame of a 3D region at time t.
func (c *Client) FindRegionAtTime(ctx context.Context, regionID string, t int) (region.RingSet, error) {
	req := struct {
		Time      int    `json:"time"`
		PolygonID string `json:"polygonID"`
	}{t, regionID}
	var out region.RingSet
	if err := c.call(ctx, PathRegionAtTime, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CombineRegions merges the selected regions into one ring-set.
func (c *Client) CombineRegions(ctx context.Context) (region.RingSet, error) {
	var out region.RingSet
	if err := c.call(ctx, PathCombine, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ManageRegion mirrors a region change to the server session.
func (c *Client) ManageRegion(ctx context.Context, req ManageRequest) error {
	if req.Action != ActionAdd {
		req.Path, req.Computation = nil, nil
	}
	return c.call(ctx, PathManage, req, nil)
}

// RestoreSession returns the regions persisted in the server session.
func (c *Client) RestoreSession(ctx context.Context) ([]RestoredRegion, error) {
	var out struct {
		Polygons []RestoredRegion `json:"polygons"`
	}
	if err := c.call(ctx, PathRestore, nil, &out); err != nil {
		return nil, err
	}
	return out.Polygons, nil
}

// ClearSession drops the server session.
func (c *Client) ClearSession(ctx context.Context) error {
	return c.call(ctx, PathClear, nil, nil)
}

// ringSets decodes a set-operation payload. The service answers either a
// list of ring-sets or, for a single result, a bare ring-set.
func (c *Client) ringSets(ctx context.Context, path string) ([]region.RingSet, error) {
	var raw json.RawMessage
	if err := c.call(ctx, path, nil, &raw); err != nil {
		return nil, err
	}
	out, err := decodeRingSets(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: decoding payload: %w", path, err)
	}
	return out, nil
}

func decodeRingSets(raw json.RawMessage) ([]region.RingSet, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	var many []region.RingSet
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one region.RingSet
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []region.RingSet{one}, nil
}

// call posts body to path and decodes the envelope payload into out.
func (c *Client) call(ctx context.Context, path string, body any, out any) error {
	form := url.Values{}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", path, err)
		}
		form.Set("data", string(b))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	t0 := time.Now()
	metrics.ComputeRequestsTotal.WithLabelValues(path).Inc()
	c.log.Debug("compute_request", "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		c.fail(path, "http", err)
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	dur := time.Since(t0).Milliseconds()
	metrics.ComputeDurationMs.WithLabelValues(path).Observe(float64(dur))

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
		c.fail(path, "status", err)
		return err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.fail(path, "decode", err)
		return fmt.Errorf("%s: decoding envelope: %w", path, err)
	}
	if !env.Success {
		c.fail(path, "unsuccessful", ErrUnsuccessful)
		return fmt.Errorf("%s: %w", path, ErrUnsuccessful)
	}
	c.log.Debug("compute_response", "path", path, "duration_ms", dur)

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.fail(path, "decode", err)
		return fmt.Errorf("%s: decoding payload: %w", path, err)
	}
	return nil
}

func (c *Client) fail(path, reason string, err error) {
	metrics.ComputeFailTotal.WithLabelValues(path, reason).Inc()
	c.log.Warn("compute_request_failed", "path", path, "reason", reason, "err", err)
}
