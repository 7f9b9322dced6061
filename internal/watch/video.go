package watch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/watchtrail/internal/auth"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/validate"
)

type createVideoRequest struct {
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"durationSeconds"`
	PlaylistURL     string  `json:"playlistUrl"`
}

type videoItem struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"durationSeconds"`
	PlaylistURL     *string `json:"playlistUrl"`
	ShareToken      string  `json:"shareToken"`
	CreatedAt       string  `json:"createdAt"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createVideoRequest
	if err := httputil.ReadJSON(w, r, maxRequestBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validate.Title(req.Title); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := validate.PlaylistURL(req.PlaylistURL); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if req.DurationSeconds < 0 {
		httputil.WriteError(w, http.StatusBadRequest, "durationSeconds must not be negative")
		return
	}

	duration := req.DurationSeconds
	if duration == 0 && req.PlaylistURL != "" && h.durations != nil {
		resolved, err := h.durations.Duration(r.Context(), req.PlaylistURL)
		if err != nil {
			slog.Warn("watch: failed to resolve playlist duration", "url", req.PlaylistURL, "error", err)
			httputil.WriteError(w, http.StatusUnprocessableEntity, "could not resolve playlist duration")
			return
		}
		duration = resolved
	}
	if duration <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "durationSeconds or playlistUrl is required")
		return
	}

	shareToken, err := generateShareToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to generate share token")
		return
	}

	var playlistURL *string
	if req.PlaylistURL != "" {
		playlistURL = &req.PlaylistURL
	}

	item := videoItem{
		Title:           req.Title,
		DurationSeconds: duration,
		PlaylistURL:     playlistURL,
		ShareToken:      shareToken,
	}
	var createdAt time.Time
	err = h.db.QueryRow(r.Context(),
		`INSERT INTO videos (user_id, title, duration_seconds, playlist_url, share_token)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		userID, req.Title, duration, playlistURL, shareToken,
	).Scan(&item.ID, &createdAt)
	if err != nil {
		slog.Error("watch: failed to create video", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create video")
		return
	}
	item.CreatedAt = createdAt.Format(time.RFC3339)

	httputil.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	rows, err := h.db.Query(r.Context(),
		`SELECT id, title, duration_seconds, playlist_url, share_token, created_at
		 FROM videos WHERE user_id = $1 AND status != 'deleted'
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	defer rows.Close()

	items := make([]videoItem, 0)
	for rows.Next() {
		var item videoItem
		var createdAt time.Time
		if err := rows.Scan(&item.ID, &item.Title, &item.DurationSeconds, &item.PlaylistURL, &item.ShareToken, &createdAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan video")
			return
		}
		item.CreatedAt = createdAt.Format(time.RFC3339)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read videos")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	videoID := chi.URLParam(r, "id")

	var id string
	err := h.db.QueryRow(r.Context(),
		`UPDATE videos SET status = 'deleted'
		 WHERE id = $1 AND user_id = $2 AND status != 'deleted'
		 RETURNING id`,
		videoID, userID,
	).Scan(&id)
	if err != nil {
		writeLookupError(w, videoID, err)
		return
	}

	keys, err := h.exportKeys(r.Context(), id)
	if err != nil {
		slog.Error("watch: failed to list exports for deleted video", "video_id", id, "error", err)
	}

	if len(keys) > 0 && h.storage != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			for _, key := range keys {
				if err := deleteWithRetry(ctx, h.storage, key, 3); err != nil {
					slog.Error("watch: export delete failed", "video_id", id, "key", key, "error", err)
				}
			}
		}()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportKeys(ctx context.Context, videoID string) ([]string, error) {
	rows, err := h.db.Query(ctx,
		`SELECT object_key FROM segment_exports WHERE video_id = $1`, videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
