// Package metadata resolves video titles and thumbnails through the
// provider's oEmbed endpoint. Lookups ride behind a circuit breaker so a
// provider outage degrades to fallback metadata instead of stalling every
// queue addition.
package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/types"
)

// DefaultEndpoint is the YouTube oEmbed endpoint.
const DefaultEndpoint = "https://www.youtube.com/oembed"

// lookupTimeout caps a single oEmbed round trip.
const lookupTimeout = 5 * time.Second

// Client implements types.MetadataOracle against an oEmbed endpoint.
type Client struct {
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	endpoint string
}

// NewClient builds an oracle for the given oEmbed endpoint; an empty
// endpoint selects the YouTube default.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	st := gobreaker.Settings{
		Name:        "metadata",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("metadata").Set(stateVal)
		},
	}

	return &Client{
		http:     &http.Client{Timeout: lookupTimeout},
		cb:       gobreaker.NewCircuitBreaker(st),
		endpoint: endpoint,
	}
}

type oembedResponse struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Lookup fetches title and thumbnail for a provider video id. Callers are
// expected to substitute Fallback values on error; an open breaker fails
// fast without touching the network.
func (c *Client) Lookup(ctx context.Context, externalRef string) (types.VideoMeta, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		watchURL := "https://www.youtube.com/watch?v=" + externalRef
		lookupURL := fmt.Sprintf("%s?url=%s&format=json", c.endpoint, url.QueryEscape(watchURL))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build oembed request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("oembed request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("oembed status %d", resp.StatusCode)
		}

		var body oembedResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode oembed response: %w", err)
		}

		meta := types.VideoMeta{Title: body.Title, Thumbnail: body.ThumbnailURL}
		if meta.Title == "" {
			meta.Title = "Unknown"
		}
		return meta, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("metadata").Inc()
			logging.Warn(ctx, "Metadata breaker open, lookup skipped", zap.String("external_ref", externalRef))
		}
		metrics.MetadataLookups.WithLabelValues("error").Inc()
		return types.VideoMeta{}, err
	}

	metrics.MetadataLookups.WithLabelValues("ok").Inc()
	return res.(types.VideoMeta), nil
}

// BreakerState reports the circuit breaker state ("closed", "half-open"
// or "open") for the readiness probe.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// Fallback returns the metadata used when a lookup fails. YouTube
// thumbnails live at a predictable URL, so those still render.
func Fallback(ref types.VideoRef) types.VideoMeta {
	meta := types.VideoMeta{Title: "Unknown Video"}
	if ref.Kind == types.VideoKindYouTube && ref.ID != "" {
		meta.Thumbnail = fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", ref.ID)
	}
	return meta
}
