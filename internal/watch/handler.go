package watch

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sendrec/watchtrail/internal/database"
	"github.com/sendrec/watchtrail/internal/httputil"
	"github.com/sendrec/watchtrail/internal/viewer"
)

const (
	DefaultMaxSegmentsPerRequest = 50
	maxRequestBytes              = 64 * 1024
)

type ObjectStorage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, filename string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

type DurationResolver interface {
	Duration(ctx context.Context, playlistURL string) (float64, error)
}

type Handler struct {
	db                    database.DBTX
	storage               ObjectStorage
	geo                   viewer.CountryResolver
	durations             DurationResolver
	maxSegmentsPerRequest int
}

func NewHandler(db database.DBTX, s ObjectStorage, maxSegmentsPerRequest int) *Handler {
	if maxSegmentsPerRequest <= 0 {
		maxSegmentsPerRequest = DefaultMaxSegmentsPerRequest
	}
	return &Handler{
		db:                    db,
		storage:               s,
		maxSegmentsPerRequest: maxSegmentsPerRequest,
	}
}

func (h *Handler) SetCountryResolver(geo viewer.CountryResolver) {
	h.geo = geo
}

func (h *Handler) SetDurationResolver(r DurationResolver) {
	h.durations = r
}

// writeLookupError answers 404 when the video row is missing and 500 for any
// other database failure.
func writeLookupError(w http.ResponseWriter, videoID string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	slog.Error("watch: failed to look up video", "video_id", videoID, "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "failed to look up video")
}

func generateShareToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func deleteWithRetry(ctx context.Context, storage ObjectStorage, key string, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		lastErr = storage.DeleteObject(ctx, key)
		if lastErr == nil {
			return nil
		}
		slog.Error("storage: delete attempt failed", "attempt", attempt+1, "max_attempts", maxAttempts, "key", key, "error", lastErr)
	}
	return fmt.Errorf("all %d delete attempts failed for %s: %w", maxAttempts, key, lastErr)
}
