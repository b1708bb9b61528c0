// Package enrichmentmodule binds movies to external metadata providers,
// catalogs their candidate assets, scores them, and downloads selections into
// the content-addressed cache.
package enrichmentmodule

import (
	"context"
	"sync"
	"time"

	"github.com/curatarr/curatarr/internal/database"
)

// SearchResult is one provider match for a title search.
type SearchResult struct {
	TmdbID int     `json:"tmdb_id"`
	Title  string  `json:"title"`
	Year   int     `json:"year"`
	Score  float64 `json:"score"`
}

// CastMember is one credited actor.
type CastMember struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	SortOrder int    `json:"sort_order"`
	TmdbID    int    `json:"tmdb_id,omitempty"`
}

// CrewCredit is one credited crew member.
type CrewCredit struct {
	Name   string `json:"name"`
	Job    string `json:"job"`
	TmdbID int    `json:"tmdb_id,omitempty"`
}

// MovieDetails is the provider's canonical metadata for a movie.
type MovieDetails struct {
	TmdbID        int
	ImdbID        string
	Title         string
	OriginalTitle string
	Tagline       string
	Plot          string
	RuntimeMin    int
	Year          int
	ReleaseDate   *time.Time
	ContentRating string
	Rating        float64
	Votes         int
	Genres        []string
	Studios       []string
	Cast          []CastMember
	Crew          []CrewCredit
}

// AssetCandidate is one downloadable asset offered by a provider.
type AssetCandidate struct {
	Slot          database.Slot
	URL           string
	Width         int
	Height        int
	Language      string
	ProviderScore float64
}

// Provider is a TMDB-shaped metadata source. Implementations own their HTTP
// client and rate limiting; every call observes the context deadline.
type Provider interface {
	Name() string
	SearchMovie(ctx context.Context, title string, year int) ([]SearchResult, error)
	MovieDetails(ctx context.Context, tmdbID int, language string) (*MovieDetails, error)
	MovieAssets(ctx context.Context, tmdbID int, language string) ([]AssetCandidate, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// rateLimiter spaces requests at a fixed minimum interval, derived from the
// provider's configured requests-per-second.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRateLimiter(perSec float64) *rateLimiter {
	if perSec <= 0 {
		perSec = 4
	}
	return &rateLimiter{interval: time.Duration(float64(time.Second) / perSec)}
}

// wait blocks until the next request slot or the context ends.
func (l *rateLimiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
