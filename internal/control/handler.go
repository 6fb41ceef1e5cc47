// Package control exposes the engine's HTTP control surface. The UI
// drives selection, navigation, region editing and playback through
// these endpoints; state flows back over the notify websocket.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"segment-annotator/internal/backend"
	"segment-annotator/internal/engine"
)

// Handler exposes annotation endpoints using go-chi.
type Handler struct {
	session *engine.Session
	backend *backend.Client
	log     *slog.Logger
}

// NewHandler returns a Handler over the given session and backend client.
func NewHandler(session *engine.Session, bc *backend.Client, log *slog.Logger) *Handler {
	return &Handler{session: session, backend: bc, log: log}
}

// Routes mounts every control endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/annotators", h.ListAnnotators)
	r.Post("/annotator/select", h.SelectAnnotator)
	r.Get("/datasets", h.ListDatasets)
	r.Get("/dataset/{dataset_id}/samples", h.LoadSamples)
	r.Get("/dataset/{dataset_id}/segments", h.ListDatasetSegments)
	r.Post("/dataset/{dataset_id}/remove_rejected", h.RemoveRejected)

	r.Post("/sample/{sample_id}/select", h.SelectSample)
	r.Post("/sample/review", h.SetReviewed)

	r.Get("/segments", h.ListSegments)
	r.Post("/segment/{segment_id}/select", h.SelectSegment)
	r.Post("/segment/next", h.NextSegment)
	r.Post("/segment/previous", h.PreviousSegment)
	r.Post("/segment/create", h.CreateSegment)
	r.Post("/segment/batch/plan", h.PlanBatch)
	r.Post("/segment/batch", h.CreateBatch)
	r.Post("/segment/{segment_id}/status", h.SetStatus)
	r.Post("/segment/{segment_id}/comment", h.SetComment)
	r.Post("/segment/bounds", h.UpdateBounds)
	r.Delete("/segment/{segment_id}", h.DeleteSegment)

	r.Post("/region/input", h.SetRegionInput)
	r.Post("/region/drag", h.DragMarker)
	r.Post("/region/commit", h.CommitDrag)

	r.Post("/playback/play", h.Play)
	r.Post("/playback/resume", h.Resume)
	r.Post("/playback/pause", h.PausePlayback)

	r.Get("/video/status", h.VideoStatus)
	r.Post("/video/download", h.DownloadVideo)
	r.Post("/video/delete", h.DeleteVideo)
}

// ListAnnotators handles GET /annotators.
func (h *Handler) ListAnnotators(w http.ResponseWriter, r *http.Request) {
	names, err := h.backend.Annotators(r.Context())
	if err != nil {
		h.fail(w, "list annotators", err)
		return
	}
	h.writeJSON(w, http.StatusOK, names)
}

// SelectAnnotator handles POST /annotator/select.
// Body: { "annotator": "alice" }.
func (h *Handler) SelectAnnotator(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Annotator string `json:"annotator"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Annotator == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.backend.SelectAnnotator(r.Context(), body.Annotator); err != nil {
		h.fail(w, "select annotator", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "annotator": body.Annotator})
}

// ListDatasets handles GET /datasets?annotator=alice.
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.backend.Datasets(r.Context(), r.URL.Query().Get("annotator"))
	if err != nil {
		h.fail(w, "list datasets", err)
		return
	}
	h.writeJSON(w, http.StatusOK, datasets)
}

// LoadSamples handles GET /dataset/{dataset_id}/samples?annotator=alice.
// The fetched list also becomes the session's active sample order.
func (h *Handler) LoadSamples(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	if datasetID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	samples, err := h.backend.Samples(r.Context(), datasetID, r.URL.Query().Get("annotator"))
	if err != nil {
		h.fail(w, "load samples", err)
		return
	}
	h.session.SetSamples(samples)
	h.writeJSON(w, http.StatusOK, samples)
}

// ListDatasetSegments handles GET /dataset/{dataset_id}/segments.
func (h *Handler) ListDatasetSegments(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	if datasetID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	segments, err := h.backend.DatasetSegments(r.Context(), datasetID)
	if err != nil {
		h.fail(w, "list dataset segments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, segments)
}

// RemoveRejected handles POST /dataset/{dataset_id}/remove_rejected.
func (h *Handler) RemoveRejected(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset_id")
	if datasetID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.RemoveRejected(r.Context(), datasetID); err != nil {
		h.fail(w, "remove rejected", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SelectSample handles POST /sample/{sample_id}/select.
func (h *Handler) SelectSample(w http.ResponseWriter, r *http.Request) {
	sampleID := chi.URLParam(r, "sample_id")
	if sampleID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.SelectSample(r.Context(), sampleID); err != nil {
		h.fail(w, "select sample", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetReviewed handles POST /sample/review on the active sample.
// Body: { "reviewed": true }.
func (h *Handler) SetReviewed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reviewed bool `json:"reviewed"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	var err error
	if body.Reviewed {
		err = h.session.MarkReviewed(r.Context())
	} else {
		err = h.session.MarkUnreviewed(r.Context())
	}
	if err != nil {
		h.fail(w, "set reviewed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// segmentListing is the paged segment list view.
type segmentListing struct {
	Segments  []engine.Segment `json:"segments"`
	Page      int              `json:"page"`
	PageCount int              `json:"page_count"`
	Current   *engine.Segment  `json:"current,omitempty"`
}

// ListSegments handles GET /segments, returning the active sample's
// current page.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	nav := h.session.Navigator()
	listing := segmentListing{
		Segments:  nav.PageSlice(),
		Page:      nav.Page(),
		PageCount: nav.PageCount(),
	}
	if cur, ok := nav.Current(); ok {
		listing.Current = &cur
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// SelectSegment handles POST /segment/{segment_id}/select.
func (h *Handler) SelectSegment(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segment_id")
	if segmentID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.SelectSegment(segmentID); err != nil {
		h.fail(w, "select segment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// NextSegment handles POST /segment/next.
func (h *Handler) NextSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.session.NextSegment(r.Context()); err != nil {
		h.fail(w, "next segment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PreviousSegment handles POST /segment/previous.
func (h *Handler) PreviousSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.session.PreviousSegment(r.Context()); err != nil {
		h.fail(w, "previous segment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CreateSegment handles POST /segment/create from the current region.
func (h *Handler) CreateSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.session.CreateSegmentFromRegion(r.Context())
	if err != nil {
		h.fail(w, "create segment", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "segment": seg})
}

// PlanBatch handles POST /segment/batch/plan.
// Body: { "segment_duration": 2.5 }.
func (h *Handler) PlanBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SegmentDuration float64 `json:"segment_duration"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	plan, err := h.session.PlanBatch(body.SegmentDuration)
	if err != nil {
		h.fail(w, "plan batch", err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// CreateBatch handles POST /segment/batch, executing a previously
// planned split.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var plan engine.BatchPlan
	if !h.decode(w, r, &plan) {
		return
	}
	created, err := h.session.CreateBatch(r.Context(), plan)
	if err != nil {
		h.log.Error("batch create failed",
			slog.Int("created", created),
			slog.String("error", err.Error()))
		h.writeJSON(w, statusFor(err), map[string]any{"success": false, "created": created})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "created": created})
}

// SetStatus handles POST /segment/{segment_id}/status.
// Body: { "status": "selected" }.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segment_id")
	var body struct {
		Status engine.SegmentStatus `json:"status"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	switch body.Status {
	case engine.StatusPending, engine.StatusSelected, engine.StatusRejected:
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.UpdateSegmentStatus(r.Context(), segmentID, body.Status); err != nil {
		h.fail(w, "set status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetComment handles POST /segment/{segment_id}/comment. The save is
// debounced inside the session; this endpoint always returns accepted.
func (h *Handler) SetComment(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segment_id")
	var body struct {
		Comment string `json:"comment"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	h.session.SetComment(segmentID, body.Comment)
	w.WriteHeader(http.StatusAccepted)
}

// UpdateBounds handles POST /segment/bounds, rewriting the selected
// segment's boundaries from the current region.
func (h *Handler) UpdateBounds(w http.ResponseWriter, r *http.Request) {
	if err := h.session.UpdateSegmentBounds(r.Context()); err != nil {
		h.fail(w, "update bounds", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteSegment handles DELETE /segment/{segment_id}.
func (h *Handler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	segmentID := chi.URLParam(r, "segment_id")
	if segmentID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.session.DeleteSegment(r.Context(), segmentID); err != nil {
		h.fail(w, "delete segment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetRegionInput handles POST /region/input.
// Body: { "start": "01:10", "end": "01:25" }.
func (h *Handler) SetRegionInput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.session.SetRegionFromInput(body.Start, body.End); err != nil {
		h.fail(w, "set region", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DragMarker handles POST /region/drag.
// Body: { "marker": "start", "percent": 42.5 }.
func (h *Handler) DragMarker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Marker  string  `json:"marker"`
		Percent float64 `json:"percent"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	switch body.Marker {
	case "start":
		h.session.DragStartMarker(body.Percent)
	case "end":
		h.session.DragEndMarker(body.Percent)
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// CommitDrag handles POST /region/commit.
func (h *Handler) CommitDrag(w http.ResponseWriter, r *http.Request) {
	h.session.CommitDrag()
	w.WriteHeader(http.StatusOK)
}

// Play handles POST /playback/play, starting the region from its start.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.session.PlayRegion(r.Context()); err != nil {
		h.fail(w, "play region", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"playing": true})
}

// Resume handles POST /playback/resume, continuing without seeking.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Resume(r.Context()); err != nil {
		h.fail(w, "resume playback", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"playing": true})
}

// PausePlayback handles POST /playback/pause.
func (h *Handler) PausePlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Pause(); err != nil {
		h.fail(w, "pause playback", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
}

// VideoStatus handles GET /video/status?dataset=d&sample=s&video_paths[]=...
// It passes the availability query through to the backend untouched.
func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statuses, err := h.backend.SampleVideoStatus(r.Context(),
		q.Get("dataset"), q.Get("sample"), q["video_paths[]"])
	if err != nil {
		h.fail(w, "video status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"video_statuses": statuses})
}

// DownloadVideo handles POST /video/download. The call blocks until the
// backend finishes fetching the media.
func (h *Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	var req backend.DownloadRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.backend.DownloadVideo(r.Context(), req)
	if err != nil {
		h.fail(w, "download video", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DeleteVideo handles POST /video/delete, removing local media for a sample.
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Dataset string            `json:"dataset"`
		Sample  string            `json:"sample"`
		Type    engine.SampleType `json:"type"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.backend.DeleteVideo(r.Context(), body.Dataset, body.Sample, body.Type); err != nil {
		h.fail(w, "delete video", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.log.Error(op+" failed", slog.String("error", err.Error()))
	} else {
		h.log.Info(op+" rejected", slog.String("error", err.Error()))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps engine signals onto HTTP statuses. Navigation bounds
// and missing prerequisites are conflicts, bad input is a bad request,
// anything else is a backend failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidTimecode),
		errors.Is(err, engine.ErrInvalidRegion),
		errors.Is(err, engine.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrAtEnd),
		errors.Is(err, engine.ErrAtStart),
		errors.Is(err, engine.ErrNoSegments),
		errors.Is(err, engine.ErrNoSamples),
		errors.Is(err, engine.ErrNoActiveSample),
		errors.Is(err, engine.ErrNoSegmentSelected),
		errors.Is(err, engine.ErrNoActiveStream):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
