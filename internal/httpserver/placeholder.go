package httpserver

import (
	_ "embed"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// PlaceholderPath serves the image handed out when a photo cannot be produced
const PlaceholderPath = "/static/placeholder.svg"

//go:embed static/placeholder.svg
var placeholderSVG []byte

// handlePlaceholder serves the embedded placeholder image
func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(placeholderSVG)))
	w.Header().Set("Cache-Control", "public, max-age=604800")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(placeholderSVG); err != nil {
		s.logger.Debug("Failed to write placeholder", zap.Error(err))
	}
}
