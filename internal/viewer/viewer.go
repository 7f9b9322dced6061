package viewer

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/mssola/useragent"
	"github.com/sendrec/watchtrail/internal/httputil"
)

type CountryResolver interface {
	Country(ip string) string
}

// Viewer identifies an anonymous viewer without storing their address.
type Viewer struct {
	Hash    string
	Country string
	Browser string
	Device  string
}

func FromRequest(r *http.Request, geo CountryResolver) Viewer {
	ip := httputil.ClientIP(r)
	v := Viewer{Hash: Hash(ip, r.UserAgent())}
	v.Browser, v.Device = classify(r.UserAgent())
	if geo != nil {
		v.Country = geo.Country(ip)
	}
	return v
}

func Hash(ip, userAgent string) string {
	h := sha256.Sum256([]byte(ip + "|" + userAgent))
	return fmt.Sprintf("%x", h[:8])
}

func classify(userAgent string) (browser, device string) {
	if userAgent == "" {
		return "Unknown", "unknown"
	}
	ua := useragent.New(userAgent)
	browser, _ = ua.Browser()
	if browser == "" {
		browser = "Unknown"
	}
	switch {
	case ua.Bot():
		device = "bot"
	case ua.Platform() == "iPad":
		device = "tablet"
	case ua.Mobile():
		device = "mobile"
	default:
		device = "desktop"
	}
	return browser, device
}
