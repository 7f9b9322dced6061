package watch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/watchtrail/internal/auth"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/segment"
	"github.com/sendrec/watchtrail/internal/viewer"
)

const (
	mergeCounted   = "counted"
	mergeAdjoining = "adjoining"
	mergeNone      = "none"
)

type segmentsResponse struct {
	VideoID         string           `json:"videoId"`
	DurationSeconds float64          `json:"durationSeconds"`
	Merge           string           `json:"merge"`
	Segments        []segment.Record `json:"segments"`
}

type progressSegment struct {
	segment.Record
	segment.Position
}

type ownerProgressResponse struct {
	DurationSeconds  float64           `json:"durationSeconds"`
	WatchedSeconds   float64           `json:"watchedSeconds"`
	Viewers          int               `json:"viewers"`
	CompletedViewers int               `json:"completedViewers"`
	Segments         []progressSegment `json:"segments"`
}

type viewerProgressResponse struct {
	DurationSeconds float64           `json:"durationSeconds"`
	WatchedSeconds  float64           `json:"watchedSeconds"`
	Completed       bool              `json:"completed"`
	Segments        []progressSegment `json:"segments"`
}

type storedSegment struct {
	ViewerHash string
	segment.Segment
}

func (h *Handler) ownedVideoDuration(r *http.Request, videoID string) (float64, error) {
	var duration float64
	err := h.db.QueryRow(r.Context(),
		`SELECT duration_seconds FROM videos WHERE id = $1 AND user_id = $2 AND status != 'deleted'`,
		videoID, auth.UserIDFromContext(r.Context()),
	).Scan(&duration)
	return duration, err
}

// loadSegments returns the stored rows for a video, restricted to one viewer
// when viewerHash is set. Rows are validated before anything merges them.
func (h *Handler) loadSegments(ctx context.Context, videoID, viewerHash string) ([]storedSegment, error) {
	query := `SELECT viewer_hash, video_start_time, video_end_time, count FROM watched_segments
		 WHERE video_id = $1 ORDER BY video_start_time, video_end_time`
	args := []any{videoID}
	if viewerHash != "" {
		query = `SELECT viewer_hash, video_start_time, video_end_time, count FROM watched_segments
		 WHERE video_id = $1 AND viewer_hash = $2 ORDER BY video_start_time, video_end_time`
		args = append(args, viewerHash)
	}

	rows, err := h.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	stored := make([]storedSegment, 0)
	for rows.Next() {
		var s storedSegment
		if err := rows.Scan(&s.ViewerHash, &s.Start, &s.End, &s.Count); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		stored = append(stored, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read segments: %w", err)
	}

	if err := segment.Validate(plain(stored), true); err != nil {
		return nil, fmt.Errorf("video %s: %w", videoID, err)
	}
	return stored, nil
}

func plain(stored []storedSegment) []segment.Segment {
	out := make([]segment.Segment, len(stored))
	for i, s := range stored {
		out[i] = s.Segment
	}
	return out
}

func byViewer(stored []storedSegment) map[string][]segment.Segment {
	grouped := make(map[string][]segment.Segment)
	for _, s := range stored {
		grouped[s.ViewerHash] = append(grouped[s.ViewerHash], s.Segment)
	}
	return grouped
}

func parseWidth(r *http.Request) (float64, error) {
	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil || width <= 0 || width > segment.MaxDisplayWidth {
		return 0, fmt.Errorf("width must be between 1 and %d", segment.MaxDisplayWidth)
	}
	return float64(width), nil
}

func progressSegments(segments []segment.Segment, duration, width float64) []progressSegment {
	visible := segment.VisibleSegments(segments, duration, width)
	out := make([]progressSegment, 0, len(visible))
	for _, s := range visible {
		out = append(out, progressSegment{
			Record:   segment.Record{VideoStartTime: s.Start, VideoEndTime: s.End},
			Position: segment.Place(s, duration),
		})
	}
	return out
}

func writeLoadError(w http.ResponseWriter, videoID string, err error) {
	if isInvalidSegment(err) {
		slog.Error("watch: stored segments are invalid", "video_id", videoID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "stored segments are invalid")
		return
	}
	slog.Error("watch: failed to load segments", "video_id", videoID, "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "failed to load segments")
}

func (h *Handler) Segments(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	merge := r.URL.Query().Get("merge")
	if merge == "" {
		merge = mergeCounted
	}
	if merge != mergeCounted && merge != mergeAdjoining && merge != mergeNone {
		httputil.WriteError(w, http.StatusBadRequest, "invalid merge: must be counted, adjoining, or none")
		return
	}

	duration, err := h.ownedVideoDuration(r, videoID)
	if err != nil {
		writeLookupError(w, videoID, err)
		return
	}

	stored, err := h.loadSegments(r.Context(), videoID, "")
	if err != nil {
		writeLoadError(w, videoID, err)
		return
	}

	segments := plain(stored)
	switch merge {
	case mergeCounted:
		segments = segment.MergeCounted(segments)
	case mergeAdjoining:
		segments = segment.MergeAdjoining(segments)
	}

	httputil.WriteJSON(w, http.StatusOK, segmentsResponse{
		VideoID:         videoID,
		DurationSeconds: duration,
		Merge:           merge,
		Segments:        segment.ToRecords(segments),
	})
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	width, err := parseWidth(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	duration, err := h.ownedVideoDuration(r, videoID)
	if err != nil {
		writeLookupError(w, videoID, err)
		return
	}

	stored, err := h.loadSegments(r.Context(), videoID, "")
	if err != nil {
		writeLoadError(w, videoID, err)
		return
	}

	viewers := byViewer(stored)
	completed := 0
	for _, segments := range viewers {
		if segment.Completed(segment.BuildIndex(segment.MergeAdjoining(segments)), duration) {
			completed++
		}
	}

	segments := plain(stored)
	httputil.WriteJSON(w, http.StatusOK, ownerProgressResponse{
		DurationSeconds:  duration,
		WatchedSeconds:   segment.WatchedSeconds(segments),
		Viewers:          len(viewers),
		CompletedViewers: completed,
		Segments:         progressSegments(segments, duration, width),
	})
}

func (h *Handler) ViewerProgress(w http.ResponseWriter, r *http.Request) {
	width, err := parseWidth(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	video, err := h.lookupShared(r)
	if err != nil {
		writeLookupError(w, "", err)
		return
	}

	v := viewer.FromRequest(r, nil)
	stored, err := h.loadSegments(r.Context(), video.ID, v.Hash)
	if err != nil {
		writeLoadError(w, video.ID, err)
		return
	}

	merged := segment.MergeAdjoining(plain(stored))
	httputil.WriteJSON(w, http.StatusOK, viewerProgressResponse{
		DurationSeconds: video.DurationSeconds,
		WatchedSeconds:  segment.WatchedSeconds(merged),
		Completed:       segment.Completed(segment.BuildIndex(merged), video.DurationSeconds),
		Segments:        progressSegments(merged, video.DurationSeconds, width),
	})
}
