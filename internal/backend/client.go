// Package backend is the HTTP client for the annotation backend, the
// system of record for datasets, samples and segments. Every engine
// mutation lands here; the engine only caches what it has fetched.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"segment-annotator/internal/engine"
)

const defaultTimeout = 30 * time.Second

// Client talks to the annotation backend's REST API. It implements
// engine.AnnotationStore.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

// New builds a client for the backend at baseURL.
func New(baseURL string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		log:        log,
	}
}

// successEnvelope is the backend's mutation response shape.
type successEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Annotators lists the registered annotator identities.
func (c *Client) Annotators(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/api/annotators", nil, &names); err != nil {
		return nil, fmt.Errorf("list annotators: %w", err)
	}
	return names, nil
}

// SelectAnnotator records the active annotator identity on the backend.
func (c *Client) SelectAnnotator(ctx context.Context, annotator string) error {
	body := map[string]string{"annotator": annotator}
	if err := c.postMutation(ctx, "/api/annotator/select", body); err != nil {
		return fmt.Errorf("select annotator %q: %w", annotator, err)
	}
	return nil
}

// Dataset is one annotatable collection as listed by the backend.
type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
}

// Datasets lists the datasets assigned to an annotator.
func (c *Client) Datasets(ctx context.Context, annotator string) ([]Dataset, error) {
	q := url.Values{"annotator": {annotator}}
	var datasets []Dataset
	if err := c.getJSON(ctx, "/api/datasets", q, &datasets); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return datasets, nil
}

// Samples lists a dataset's samples in dataset order, scoped to the
// annotator's assignment.
func (c *Client) Samples(ctx context.Context, datasetID, annotator string) ([]engine.Sample, error) {
	q := url.Values{"annotator": {annotator}}
	var samples []engine.Sample
	path := fmt.Sprintf("/api/dataset/%s/samples", url.PathEscape(datasetID))
	if err := c.getJSON(ctx, path, q, &samples); err != nil {
		return nil, fmt.Errorf("list samples of dataset %q: %w", datasetID, err)
	}
	return samples, nil
}

// DatasetSegments lists every segment across a dataset.
func (c *Client) DatasetSegments(ctx context.Context, datasetID string) ([]engine.Segment, error) {
	var segments []engine.Segment
	path := fmt.Sprintf("/api/dataset/%s/segments", url.PathEscape(datasetID))
	if err := c.getJSON(ctx, path, nil, &segments); err != nil {
		return nil, fmt.Errorf("list segments of dataset %q: %w", datasetID, err)
	}
	return segments, nil
}

// SampleSegments lists a sample's segments in list order.
func (c *Client) SampleSegments(ctx context.Context, sampleID string) ([]engine.Segment, error) {
	var segments []engine.Segment
	path := fmt.Sprintf("/api/sample/%s/segments", url.PathEscape(sampleID))
	if err := c.getJSON(ctx, path, nil, &segments); err != nil {
		return nil, fmt.Errorf("list segments of sample %q: %w", sampleID, err)
	}
	return segments, nil
}

// CreateSegment persists a new segment.
func (c *Client) CreateSegment(ctx context.Context, seg engine.Segment) error {
	if err := c.postMutation(ctx, "/api/segment/create", seg); err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

// UpdateSegment rewrites a segment's status, bounds and comment.
func (c *Client) UpdateSegment(ctx context.Context, seg engine.Segment) error {
	path := fmt.Sprintf("/api/segment/%s/update", url.PathEscape(seg.ID))
	if err := c.postMutation(ctx, path, seg); err != nil {
		return fmt.Errorf("update segment %q: %w", seg.ID, err)
	}
	return nil
}

// DeleteSegment removes a segment.
func (c *Client) DeleteSegment(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/segment/%s/delete", url.PathEscape(id))
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if err := c.doMutation(req); err != nil {
		return fmt.Errorf("delete segment %q: %w", id, err)
	}
	return nil
}

// RemoveRejected bulk-deletes every rejected segment in a dataset.
func (c *Client) RemoveRejected(ctx context.Context, datasetID string) error {
	path := fmt.Sprintf("/api/dataset/%s/remove_rejected", url.PathEscape(datasetID))
	if err := c.postMutation(ctx, path, nil); err != nil {
		return fmt.Errorf("remove rejected segments of dataset %q: %w", datasetID, err)
	}
	return nil
}

// MarkSampleReviewed flags a sample as reviewed.
func (c *Client) MarkSampleReviewed(ctx context.Context, sampleID string) error {
	path := fmt.Sprintf("/api/sample/%s/mark_reviewed", url.PathEscape(sampleID))
	if err := c.postMutation(ctx, path, nil); err != nil {
		return fmt.Errorf("mark sample %q reviewed: %w", sampleID, err)
	}
	return nil
}

// MarkSampleUnreviewed clears a sample's reviewed flag.
func (c *Client) MarkSampleUnreviewed(ctx context.Context, sampleID string) error {
	path := fmt.Sprintf("/api/sample/%s/mark_unreviewed", url.PathEscape(sampleID))
	if err := c.postMutation(ctx, path, nil); err != nil {
		return fmt.Errorf("mark sample %q unreviewed: %w", sampleID, err)
	}
	return nil
}

// VideoStatus is the backend's local-availability report for one source.
type VideoStatus struct {
	VideoPath  string `json:"video_path"`
	Exists     bool   `json:"exists"`
	LocalPath  string `json:"local_path,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Downloaded bool   `json:"downloaded"`
}

type videoStatusResponse struct {
	VideoStatuses []VideoStatus `json:"video_statuses"`
}

// SampleVideoStatus reports which of a sample's sources are available on
// the backend's local storage.
func (c *Client) SampleVideoStatus(ctx context.Context, dataset, sample string, videoPaths []string) ([]VideoStatus, error) {
	q := url.Values{
		"dataset": {dataset},
		"sample":  {sample},
	}
	for _, p := range videoPaths {
		q.Add("video_paths[]", p)
	}
	var resp videoStatusResponse
	if err := c.getJSON(ctx, "/api/video/status", q, &resp); err != nil {
		return nil, fmt.Errorf("video status of sample %q: %w", sample, err)
	}
	return resp.VideoStatuses, nil
}

// DownloadRequest asks the backend to fetch a sample's media onto its
// local storage. VideoInfo carries the type-specific source details.
type DownloadRequest struct {
	Dataset   string            `json:"dataset"`
	Sample    string            `json:"sample"`
	Type      engine.SampleType `json:"type"`
	VideoInfo map[string]string `json:"video_info,omitempty"`
}

// DownloadResult is the backend's download outcome.
type DownloadResult struct {
	Success   bool   `json:"success"`
	LocalPath string `json:"local_path,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DownloadVideo triggers a media download on the backend. The call
// blocks until the backend finishes or the context expires.
func (c *Client) DownloadVideo(ctx context.Context, req DownloadRequest) (DownloadResult, error) {
	var result DownloadResult
	if err := c.postJSON(ctx, "/api/video/download", req, &result); err != nil {
		return DownloadResult{}, fmt.Errorf("download video for sample %q: %w", req.Sample, err)
	}
	if result.Error != "" {
		return result, fmt.Errorf("download video for sample %q: %s", req.Sample, result.Error)
	}
	return result, nil
}

// DeleteVideo removes a sample's downloaded media from the backend's
// local storage.
func (c *Client) DeleteVideo(ctx context.Context, dataset, sample string, sampleType engine.SampleType) error {
	body := map[string]string{
		"dataset": dataset,
		"sample":  sample,
		"type":    string(sampleType),
	}
	var result DownloadResult
	if err := c.postJSON(ctx, "/api/video/delete", body, &result); err != nil {
		return fmt.Errorf("delete video of sample %q: %w", sample, err)
	}
	if result.Error != "" {
		return fmt.Errorf("delete video of sample %q: %s", sample, result.Error)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("backend request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// postMutation posts and checks the backend's success envelope.
func (c *Client) postMutation(ctx context.Context, path string, body any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return c.doMutation(req)
}

func (c *Client) doMutation(req *http.Request) error {
	var env successEnvelope
	if err := c.do(req, &env); err != nil {
		return err
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("backend rejected mutation: %s", env.Error)
		}
		return fmt.Errorf("backend rejected mutation")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
