package validate

import (
	"fmt"
	"net/url"
)

// Text field length limits, shared with clients through /api/limits.
const (
	MaxTitleLength       = 500
	MaxPlaylistURLLength = 2000
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string {
	if s == "" {
		return "title is required"
	}
	return checkLen(s, MaxTitleLength, "title")
}

// PlaylistURL accepts an empty value; anything else must be an absolute
// http or https URL.
func PlaylistURL(s string) string {
	if s == "" {
		return ""
	}
	if msg := checkLen(s, MaxPlaylistURLLength, "playlist URL"); msg != "" {
		return msg
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "playlist URL must be an absolute http or https URL"
	}
	return ""
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":       MaxTitleLength,
		"playlistUrl": MaxPlaylistURLLength,
	}
}
