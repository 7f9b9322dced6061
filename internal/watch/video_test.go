package watch

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func TestCreate_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs(testUserID, "Lecture 1", 120.0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("vid-1", createdAt))

	body, _ := json.Marshal(createVideoRequest{Title: "Lecture 1", DurationSeconds: 120})

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp videoItem
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.ID != "vid-1" {
		t.Errorf("expected id %q, got %q", "vid-1", resp.ID)
	}
	if resp.DurationSeconds != 120 {
		t.Errorf("expected duration 120, got %v", resp.DurationSeconds)
	}
	if resp.ShareToken == "" {
		t.Error("expected non-empty share token")
	}
	if resp.PlaylistURL != nil {
		t.Errorf("expected nil playlist URL, got %q", *resp.PlaylistURL)
	}
	if resp.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("expected createdAt %q, got %q", "2026-03-01T12:00:00Z", resp.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestCreate_ResolvesDurationFromPlaylist(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	durations := &stubDurations{duration: 24}
	handler := NewHandler(mock, &mockStorage{}, 0)
	handler.SetDurationResolver(durations)

	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs(testUserID, "Stream", 24.0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("vid-2", time.Now()))

	body, _ := json.Marshal(createVideoRequest{Title: "Stream", PlaylistURL: "https://cdn.example.com/index.m3u8"})

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if durations.calls != 1 {
		t.Errorf("expected 1 duration lookup, got %d", durations.calls)
	}

	var resp videoItem
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.PlaylistURL == nil || *resp.PlaylistURL != "https://cdn.example.com/index.m3u8" {
		t.Errorf("expected playlist URL to be echoed, got %v", resp.PlaylistURL)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestCreate_PlaylistResolutionFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)
	handler.SetDurationResolver(&stubDurations{err: errors.New("404")})

	body, _ := json.Marshal(createVideoRequest{Title: "Stream", PlaylistURL: "https://cdn.example.com/index.m3u8"})

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != "could not resolve playlist duration" {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"invalid json", `{invalid`, "invalid request body"},
		{"unknown field", `{"title":"x","durationSeconds":5,"extra":1}`, "invalid request body"},
		{"missing title", `{"durationSeconds":5}`, "title is required"},
		{"negative duration", `{"title":"x","durationSeconds":-1}`, "durationSeconds must not be negative"},
		{"no duration source", `{"title":"x"}`, "durationSeconds or playlistUrl is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()

			handler := NewHandler(mock, &mockStorage{}, 0)
			r := chi.NewRouter()
			r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", []byte(tt.body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
			if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, msg)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet pgxmock expectations: %v", err)
			}
		})
	}
}

func TestCreate_DatabaseError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`INSERT INTO videos`).
		WithArgs(testUserID, "Lecture 1", 60.0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	body, _ := json.Marshal(createVideoRequest{Title: "Lecture 1", DurationSeconds: 60})

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Post("/api/videos", handler.Create)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodPost, "/api/videos", body))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != "failed to create video" {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestList_ReturnsVideos(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	playlist := "https://cdn.example.com/b.m3u8"

	mock.ExpectQuery(`SELECT id, title, duration_seconds, playlist_url, share_token, created_at`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "duration_seconds", "playlist_url", "share_token", "created_at"}).
			AddRow("vid-1", "First", 120.0, (*string)(nil), "tok1", createdAt).
			AddRow("vid-2", "Second", 24.0, &playlist, "tok2", createdAt.Add(-time.Hour)))

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos", handler.List)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var items []videoItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(items))
	}
	if items[0].PlaylistURL != nil {
		t.Errorf("expected first playlist URL to be nil")
	}
	if items[1].PlaylistURL == nil || *items[1].PlaylistURL != playlist {
		t.Errorf("expected second playlist URL %q, got %v", playlist, items[1].PlaylistURL)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`SELECT id, title, duration_seconds`).
		WithArgs(testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "duration_seconds", "playlist_url", "share_token", "created_at"}))

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Get("/api/videos", handler.List)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodGet, "/api/videos", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array, got %q", body)
	}
}

func TestDelete_SoftDeletesAndRemovesExports(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	storage := &mockStorage{deleteCalled: make(chan string, 2)}
	handler := NewHandler(mock, storage, 0)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs("vid-1", testUserID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("vid-1"))
	mock.ExpectQuery(`SELECT object_key FROM segment_exports WHERE video_id = \$1`).
		WithArgs("vid-1").
		WillReturnRows(pgxmock.NewRows([]string{"object_key"}).
			AddRow("exports/vid-1/1.json").
			AddRow("exports/vid-1/2.json"))

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Delete("/api/videos/{id}", handler.Delete)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodDelete, "/api/videos/vid-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNoContent, rec.Code, rec.Body.String())
	}

	for _, want := range []string{"exports/vid-1/1.json", "exports/vid-1/2.json"} {
		select {
		case key := <-storage.deleteCalled:
			if key != want {
				t.Errorf("expected delete of %q, got %q", want, key)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delete of %q", want)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet pgxmock expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	handler := NewHandler(mock, &mockStorage{}, 0)

	mock.ExpectQuery(`UPDATE videos SET status = 'deleted'`).
		WithArgs("missing", testUserID).
		WillReturnError(pgx.ErrNoRows)

	r := chi.NewRouter()
	r.With(newAuthMiddleware()).Delete("/api/videos/{id}", handler.Delete)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authenticatedRequest(t, http.MethodDelete, "/api/videos/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if msg := parseErrorResponse(t, rec.Body.Bytes()); msg != "video not found" {
		t.Errorf("unexpected error %q", msg)
	}
}
