package utils

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// ClientIP returns the caller address. Forwarding headers are only honoured
// when the service runs behind a trusted proxy.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// the left-most entry is the original client
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// DurationCeilSeconds rounds d up to whole seconds, as used by Retry-After
func DurationCeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// IsImageContentType reports whether a Content-Type header names an image media type
func IsImageContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	return strings.HasPrefix(mediaType, "image/") && len(mediaType) > len("image/")
}
