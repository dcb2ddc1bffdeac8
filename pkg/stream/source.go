package stream

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/carverauto/nodesim/pkg/models"
)

// NewSource builds the transport selected by cfg against the backend at
// baseURL.
func NewSource(baseURL string, cfg *models.StreamConfig, client *http.Client, userAgent string) (Source, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnsupportedURL, err)
	}

	switch cfg.Transport {
	case models.StreamTransportWebSocket:
		switch u.Scheme {
		case "http", "ws":
			u.Scheme = "ws"
		case "https", "wss":
			u.Scheme = "wss"
		default:
			return nil, fmt.Errorf("%w: scheme %q", errUnsupportedURL, u.Scheme)
		}

		return &WebSocketSource{URL: u.String(), UserAgent: userAgent}, nil
	case models.StreamTransportSSE, "":
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%w: scheme %q", errUnsupportedURL, u.Scheme)
		}

		return &SSESource{URL: u.String(), Client: client, UserAgent: userAgent}, nil
	default:
		return nil, fmt.Errorf("%w: transport %q", errUnsupportedURL, cfg.Transport)
	}
}
