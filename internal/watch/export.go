package watch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/segment"
)

const exportURLExpiry = 1 * time.Hour

type segmentExport struct {
	VideoID         string           `json:"videoId"`
	DurationSeconds float64          `json:"durationSeconds"`
	ExportedAt      string           `json:"exportedAt"`
	Segments        []segment.Record `json:"segments"`
}

type exportResponse struct {
	DownloadURL  string `json:"downloadUrl"`
	SegmentCount int    `json:"segmentCount"`
}

func exportKey(videoID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%d.json", videoID, at.UnixNano())
}

// Export writes the counted merge of a video's segments to object storage
// and returns a presigned link to the snapshot.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	if h.storage == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "export storage is not configured")
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

	now := time.Now().UTC()
	merged := segment.MergeCounted(plain(stored))
	body, err := json.Marshal(segmentExport{
		VideoID:         videoID,
		DurationSeconds: duration,
		ExportedAt:      now.Format(time.RFC3339),
		Segments:        segment.ToRecords(merged),
	})
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to encode export")
		return
	}

	key := exportKey(videoID, now)
	if err := h.storage.PutObject(r.Context(), key, body, "application/json"); err != nil {
		slog.Error("watch: failed to upload export", "video_id", videoID, "key", key, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to upload export")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO segment_exports (video_id, object_key, segment_count) VALUES ($1, $2, $3)`,
		videoID, key, len(merged),
	); err != nil {
		slog.Error("watch: failed to record export", "video_id", videoID, "key", key, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record export")
		return
	}

	url, err := h.storage.GenerateDownloadURL(r.Context(), key, fmt.Sprintf("segments-%s.json", videoID), exportURLExpiry)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate download URL")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, exportResponse{DownloadURL: url, SegmentCount: len(merged)})
}
