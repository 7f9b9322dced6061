package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/segment"
	"github.com/sendrec/watchtrail/internal/viewer"
)

type recordSegmentsRequest struct {
	Segments []segment.Record `json:"segments"`
}

type sharedVideo struct {
	ID              string
	DurationSeconds float64
}

func (h *Handler) lookupShared(r *http.Request) (sharedVideo, error) {
	var v sharedVideo
	err := h.db.QueryRow(r.Context(),
		`SELECT id, duration_seconds FROM videos WHERE share_token = $1 AND status = 'ready'`,
		chi.URLParam(r, "shareToken"),
	).Scan(&v.ID, &v.DurationSeconds)
	return v, err
}

// checkWithinDuration rejects segments that end past the video, allowing for
// the rounding the wire decoder applies.
func checkWithinDuration(segments []segment.Segment, duration float64) error {
	if duration <= 0 {
		return nil
	}
	for i, s := range segments {
		if s.End > duration+segment.AdjoiningTolerance {
			return fmt.Errorf("%w: segment %d ends after the video (%g > %g)", segment.ErrInvalidSegment, i, s.End, duration)
		}
	}
	return nil
}

func (h *Handler) RecordSegments(w http.ResponseWriter, r *http.Request) {
	var req recordSegmentsRequest
	if err := httputil.ReadJSON(w, r, maxRequestBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Segments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(req.Segments) > h.maxSegmentsPerRequest {
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("at most %d segments per request", h.maxSegmentsPerRequest))
		return
	}

	video, err := h.lookupShared(r)
	if err != nil {
		writeLookupError(w, "", err)
		return
	}

	segments := segment.FromRecords(req.Segments)
	if err := segment.Validate(segments, true); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkWithinDuration(segments, video.DurationSeconds); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A viewer's submission is one view of each range; the count a client
	// sends is never stored.
	starts := make([]float64, len(segments))
	ends := make([]float64, len(segments))
	for i, s := range segments {
		starts[i], ends[i] = s.Start, s.End
	}

	v := viewer.FromRequest(r, h.geo)
	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO watched_segments (video_id, viewer_hash, video_start_time, video_end_time, count, country, browser, device)
		 SELECT $1, $2, s.start_time, s.end_time, 1, $5, $6, $7
		 FROM unnest($3::float8[], $4::float8[]) AS s(start_time, end_time)`,
		video.ID, v.Hash, starts, ends, v.Country, v.Browser, v.Device,
	); err != nil {
		slog.Error("watch: failed to record segments", "video_id", video.ID, "segments", len(segments), "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record segments")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isInvalidSegment(err error) bool {
	return errors.Is(err, segment.ErrInvalidSegment)
}
