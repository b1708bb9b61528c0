package enrichmentmodule

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
)

const (
	defaultTMDBBaseURL  = "https://api.themoviedb.org/3"
	defaultTMDBImageURL = "https://image.tmdb.org/t/p/original"
)

// TMDBProvider talks to a TMDB-compatible REST API.
type TMDBProvider struct {
	apiKey   string
	baseURL  string
	imageURL string
	client   *http.Client
	limiter  *rateLimiter
}

// NewTMDBProvider builds a provider from its configuration row.
func NewTMDBProvider(cfg *database.ProviderConfig, requestTimeout time.Duration) *TMDBProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTMDBBaseURL
	}
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &TMDBProvider{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		imageURL: defaultTMDBImageURL,
		client:   &http.Client{Timeout: requestTimeout},
		limiter:  newRateLimiter(cfg.RateLimitPerSec),
	}
}

// Name returns the provider identifier used on catalog rows.
func (p *TMDBProvider) Name() string { return "tmdb" }

func (p *TMDBProvider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := p.limiter.wait(ctx); err != nil {
		return apperrors.Transient("rate limit wait interrupted", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return apperrors.Permanent("failed to build provider request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return apperrors.Transient("provider request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound("provider resource", path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.Transient("provider rate limited", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.Permanent("provider rejected api key", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return apperrors.Transient("provider server error", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return apperrors.Permanent("unexpected provider response", fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transient("failed to decode provider response", err)
	}
	return nil
}

type tmdbSearchResponse struct {
	Results []struct {
		ID          int     `json:"id"`
		Title       string  `json:"title"`
		ReleaseDate string  `json:"release_date"`
		Popularity  float64 `json:"popularity"`
	} `json:"results"`
}

// SearchMovie searches by title, optionally constrained to a year.
func (p *TMDBProvider) SearchMovie(ctx context.Context, title string, year int) ([]SearchResult, error) {
	query := url.Values{"query": {title}}
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}

	var resp tmdbSearchResponse
	if err := p.get(ctx, "/search/movie", query, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		resultYear := 0
		if len(r.ReleaseDate) >= 4 {
			resultYear, _ = strconv.Atoi(r.ReleaseDate[:4])
		}
		results = append(results, SearchResult{
			TmdbID: r.ID,
			Title:  r.Title,
			Year:   resultYear,
			Score:  r.Popularity,
		})
	}
	return results, nil
}

type tmdbMovieResponse struct {
	ID            int     `json:"id"`
	ImdbID        string  `json:"imdb_id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	Tagline       string  `json:"tagline"`
	Overview      string  `json:"overview"`
	Runtime       int     `json:"runtime"`
	ReleaseDate   string  `json:"release_date"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int     `json:"vote_count"`
	Genres        []struct {
		Name string `json:"name"`
	} `json:"genres"`
	ProductionCompanies []struct {
		Name string `json:"name"`
	} `json:"production_companies"`
	Credits struct {
		Cast []struct {
			ID        int    `json:"id"`
			Name      string `json:"name"`
			Character string `json:"character"`
			Order     int    `json:"order"`
		} `json:"cast"`
		Crew []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
	ReleaseDates struct {
		Results []struct {
			ISO31661     string `json:"iso_3166_1"`
			ReleaseDates []struct {
				Certification string `json:"certification"`
			} `json:"release_dates"`
		} `json:"results"`
	} `json:"release_dates"`
}

// MovieDetails fetches full metadata plus credits and certifications in one
// request.
func (p *TMDBProvider) MovieDetails(ctx context.Context, tmdbID int, language string) (*MovieDetails, error) {
	query := url.Values{"append_to_response": {"credits,release_dates"}}
	if language != "" {
		query.Set("language", language)
	}

	var resp tmdbMovieResponse
	if err := p.get(ctx, "/movie/"+strconv.Itoa(tmdbID), query, &resp); err != nil {
		return nil, err
	}

	details := &MovieDetails{
		TmdbID:        resp.ID,
		ImdbID:        resp.ImdbID,
		Title:         resp.Title,
		OriginalTitle: resp.OriginalTitle,
		Tagline:       resp.Tagline,
		Plot:          resp.Overview,
		RuntimeMin:    resp.Runtime,
		Rating:        resp.VoteAverage,
		Votes:         resp.VoteCount,
	}

	if t, err := time.Parse("2006-01-02", resp.ReleaseDate); err == nil {
		details.ReleaseDate = &t
		details.Year = t.Year()
	}
	for _, g := range resp.Genres {
		details.Genres = append(details.Genres, g.Name)
	}
	for _, c := range resp.ProductionCompanies {
		details.Studios = append(details.Studios, c.Name)
	}
	for _, c := range resp.Credits.Cast {
		details.Cast = append(details.Cast, CastMember{
			Name: c.Name, Role: c.Character, SortOrder: c.Order, TmdbID: c.ID,
		})
	}
	for _, c := range resp.Credits.Crew {
		if c.Job == "Director" || c.Job == "Writer" {
			details.Crew = append(details.Crew, CrewCredit{Name: c.Name, Job: c.Job, TmdbID: c.ID})
		}
	}
	for _, r := range resp.ReleaseDates.Results {
		if r.ISO31661 != "US" {
			continue
		}
		for _, rd := range r.ReleaseDates {
			if rd.Certification != "" {
				details.ContentRating = rd.Certification
				break
			}
		}
	}

	return details, nil
}

type tmdbImagesResponse struct {
	Backdrops []tmdbImage `json:"backdrops"`
	Posters   []tmdbImage `json:"posters"`
	Logos     []tmdbImage `json:"logos"`
}

type tmdbImage struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ISO6391     string  `json:"iso_639_1"`
	VoteAverage float64 `json:"vote_average"`
}

// MovieAssets lists candidate images for a movie. TMDB exposes posters,
// backdrops (fanart) and logos; the remaining slots come from other
// providers or local files.
func (p *TMDBProvider) MovieAssets(ctx context.Context, tmdbID int, language string) ([]AssetCandidate, error) {
	query := url.Values{}
	if language != "" {
		query.Set("include_image_language", language+",null")
	}

	var resp tmdbImagesResponse
	if err := p.get(ctx, "/movie/"+strconv.Itoa(tmdbID)+"/images", query, &resp); err != nil {
		return nil, err
	}

	var assets []AssetCandidate
	appendImages := func(slot database.Slot, images []tmdbImage) {
		for _, img := range images {
			assets = append(assets, AssetCandidate{
				Slot:          slot,
				URL:           p.imageURL + img.FilePath,
				Width:         img.Width,
				Height:        img.Height,
				Language:      img.ISO6391,
				ProviderScore: img.VoteAverage,
			})
		}
	}
	appendImages(database.SlotPoster, resp.Posters)
	appendImages(database.SlotFanart, resp.Backdrops)
	appendImages(database.SlotClearlogo, resp.Logos)
	return assets, nil
}

// Download fetches asset bytes. Size is bounded by the caller's context
// deadline and the cache layer's max file size.
func (p *TMDBProvider) Download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := p.limiter.wait(ctx); err != nil {
		return nil, apperrors.Transient("rate limit wait interrupted", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Permanent("invalid asset url", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Transient("asset download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("provider asset", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Transient("asset download failed",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Transient("asset download interrupted", err)
	}
	return data, nil
}
