// Package playlist resolves the total duration of a video from its HLS
// playlist.
package playlist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/grafov/m3u8"
	"github.com/sendrec/watchtrail/internal/geoip"
)

// maxPlaylistBytes caps a fetched playlist. Media playlists for long videos
// stay far below it.
const maxPlaylistBytes = 4 << 20

var (
	ErrEmptyPlaylist    = errors.New("playlist contains no segments")
	ErrPlaylistTooLarge = fmt.Errorf("playlist exceeds %d bytes", maxPlaylistBytes)
	ErrBlockedAddress   = errors.New("playlist host is not a public address")
)

type Resolver struct {
	client *http.Client
}

// NewResolver fetches playlists only from public addresses. The check runs
// on every dialled address, so redirects and DNS answers pointing inside the
// network are refused too.
func NewResolver() *Resolver {
	return newResolver(false)
}

func newResolver(allowPrivate bool) *Resolver {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Resolver{client: &http.Client{Timeout: 30 * time.Second, Transport: transport}}
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if ip := net.ParseIP(host); ip == nil || !geoip.Routable(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// Duration sums the EXTINF durations of a media playlist. A master playlist
// resolves through its first variant.
func (r *Resolver) Duration(ctx context.Context, playlistURL string) (float64, error) {
	playlist, listType, err := r.fetch(ctx, playlistURL)
	if err != nil {
		return 0, err
	}

	if listType == m3u8.MASTER {
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok || len(master.Variants) == 0 || master.Variants[0] == nil {
			return 0, fmt.Errorf("master playlist has no variants")
		}
		variantURL, err := resolveURL(playlistURL, master.Variants[0].URI)
		if err != nil {
			return 0, fmt.Errorf("resolve variant URL: %w", err)
		}
		playlist, listType, err = r.fetch(ctx, variantURL)
		if err != nil {
			return 0, err
		}
		if listType != m3u8.MEDIA {
			return 0, fmt.Errorf("variant %s is not a media playlist", variantURL)
		}
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return 0, fmt.Errorf("unexpected playlist type")
	}
	return mediaDuration(media)
}

func (r *Resolver) fetch(ctx context.Context, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build playlist request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch playlist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch playlist: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read playlist: %w", err)
	}
	if len(body) > maxPlaylistBytes {
		return nil, 0, ErrPlaylistTooLarge
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, 0, fmt.Errorf("parse playlist: %w", err)
	}
	return playlist, listType, nil
}

func mediaDuration(media *m3u8.MediaPlaylist) (float64, error) {
	var total float64
	n := 0
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		total += seg.Duration
		n++
	}
	if n == 0 {
		return 0, ErrEmptyPlaylist
	}
	return total, nil
}

func resolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(refURL).String(), nil
}
