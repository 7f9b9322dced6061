package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sendrec/watchtrail/internal/auth"
	"github.com/sendrec/watchtrail/internal/database"
	"github.com/sendrec/watchtrail/internal/geoip"
	"github.com/sendrec/watchtrail/internal/playlist"
	"github.com/sendrec/watchtrail/internal/server"
	"github.com/sendrec/watchtrail/internal/storage"
	"github.com/sendrec/watchtrail/internal/watch"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:], os.Getenv("JWT_SECRET"), os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}
	serve()
}

// issueToken prints a signed token, typically a long-lived segments:read
// token for the segments CLI.
func issueToken(args []string, secret string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "user ID the token acts for")
	scope := fs.String("scope", auth.ScopeSegmentsRead, "token scope: owner or segments:read")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if *userID == "" {
		return errors.New("-user is required")
	}

	token, err := auth.IssueToken(secret, *userID, *scope, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

func serve() {
	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")

	cfg := server.Config{
		DB:                    db.Pool,
		Pinger:                db,
		Durations:             playlist.NewResolver(),
		JWTSecret:             jwtSecret,
		BaseURL:               getEnv("BASE_URL", "http://localhost:8080"),
		MaxSegmentsPerRequest: int(getEnvInt64("MAX_SEGMENTS_PER_REQUEST", watch.DefaultMaxSegmentsPerRequest)),
		AllowedOrigins:        splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		TrustProxy:            os.Getenv("TRUST_PROXY") == "true",
	}

	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:       endpoint,
			PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
			Bucket:         getEnv("S3_BUCKET", "watchtrail"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         getEnv("S3_REGION", storage.DefaultRegion),
		})
		if err != nil {
			log.Fatalf("storage initialization failed: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("storage bucket check failed: %v", err)
		}
		cfg.Storage = store
		log.Println("storage bucket ready")
	} else {
		log.Println("S3_ENDPOINT not set, segment exports disabled")
	}

	geo, err := geoip.New(os.Getenv("GEOIP_DB_PATH"))
	if err != nil {
		log.Fatalf("geoip initialization failed: %v", err)
	}
	defer geo.Close()
	cfg.Geo = geo

	srv := server.New(cfg)

	limiterCtx, limiterCancel := context.WithCancel(context.Background())
	defer limiterCancel()
	srv.RunLimiters(limiterCtx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("watchtrail listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
	log.Println("shutdown complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// splitList parses a comma-separated environment value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
