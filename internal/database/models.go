package database

import (
	"time"
)

// LibraryKind distinguishes the media type a library holds.
type LibraryKind string

const (
	LibraryKindMovie LibraryKind = "movie"
	LibraryKindTV    LibraryKind = "tv"
	LibraryKindMusic LibraryKind = "music"
)

// IdentificationStatus tracks how far a movie has progressed through the
// pipeline.
type IdentificationStatus string

const (
	StatusUnidentified IdentificationStatus = "unidentified"
	StatusIdentified   IdentificationStatus = "identified"
	StatusEnriched     IdentificationStatus = "enriched"
	StatusPublished    IdentificationStatus = "published"
)

// Library represents a root directory of media on disk.
type Library struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Name        string      `gorm:"not null" json:"name"`
	RootPath    string      `gorm:"not null;uniqueIndex" json:"root_path"`
	Kind        LibraryKind `gorm:"not null;default:movie" json:"kind"`
	Enabled     bool        `gorm:"not null;default:true" json:"enabled"`
	AutoEnrich  bool        `gorm:"not null;default:true" json:"auto_enrich"`
	AutoPublish bool        `gorm:"not null;default:false" json:"auto_publish"`
	LastScanAt  *time.Time  `json:"last_scan_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Movie represents a single feature film discovered in a library.
//
// DeletedAt implements the recycle-bin semantics: a soft-deleted movie has
// DeletedAt set to a future instant (now + retention); rows whose DeletedAt
// has passed are eligible for hard delete by the cleanup job. Normal reads go
// through the Visible scope.
type Movie struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	LibraryID uint   `gorm:"not null;index" json:"library_id"`
	FilePath  string `gorm:"not null;index" json:"file_path"`
	FileName  string `gorm:"not null" json:"file_name"`
	FileSize  int64  `json:"file_size"`
	FileHash  string `gorm:"index" json:"file_hash"`

	TmdbID *int    `gorm:"index" json:"tmdb_id,omitempty"`
	ImdbID *string `gorm:"index" json:"imdb_id,omitempty"`

	Title         string     `json:"title"`
	OriginalTitle string     `json:"original_title"`
	SortTitle     string     `json:"sort_title"`
	Tagline       string     `json:"tagline"`
	Plot          string     `gorm:"type:text" json:"plot"`
	Outline       string     `gorm:"type:text" json:"outline"`
	RuntimeMin    int        `json:"runtime_min"`
	Year          int        `json:"year"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"`
	ContentRating string     `json:"content_rating"`

	ProviderRating float64  `json:"provider_rating"`
	ProviderVotes  int      `json:"provider_votes"`
	UserRating     *float64 `json:"user_rating,omitempty"`

	Monitored            bool                 `gorm:"not null;default:true" json:"monitored"`
	IdentificationStatus IdentificationStatus `gorm:"not null;default:unidentified;index" json:"identification_status"`
	EnrichmentPriority   int                  `gorm:"not null;default:5" json:"enrichment_priority"`

	// Metadata field locks (set by user edits, honored by automation)
	TitleLocked         bool `gorm:"not null;default:false" json:"title_locked"`
	OriginalTitleLocked bool `gorm:"not null;default:false" json:"original_title_locked"`
	SortTitleLocked     bool `gorm:"not null;default:false" json:"sort_title_locked"`
	TaglineLocked       bool `gorm:"not null;default:false" json:"tagline_locked"`
	PlotLocked          bool `gorm:"not null;default:false" json:"plot_locked"`
	OutlineLocked       bool `gorm:"not null;default:false" json:"outline_locked"`
	YearLocked          bool `gorm:"not null;default:false" json:"year_locked"`
	ContentRatingLocked bool `gorm:"not null;default:false" json:"content_rating_locked"`

	// Asset slot locks
	PosterLocked    bool `gorm:"not null;default:false" json:"poster_locked"`
	FanartLocked    bool `gorm:"not null;default:false" json:"fanart_locked"`
	BannerLocked    bool `gorm:"not null;default:false" json:"banner_locked"`
	ClearlogoLocked bool `gorm:"not null;default:false" json:"clearlogo_locked"`
	ClearartLocked  bool `gorm:"not null;default:false" json:"clearart_locked"`
	DiscartLocked   bool `gorm:"not null;default:false" json:"discart_locked"`
	LandscapeLocked bool `gorm:"not null;default:false" json:"landscape_locked"`
	ThumbLocked     bool `gorm:"not null;default:false" json:"thumb_locked"`
	KeyartLocked    bool `gorm:"not null;default:false" json:"keyart_locked"`
	TrailerLocked   bool `gorm:"not null;default:false" json:"trailer_locked"`
	NfoLocked       bool `gorm:"not null;default:false" json:"nfo_locked"`

	EnrichedAt  *time.Time `json:"enriched_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	DeletedAt   *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Series, Season and Episode carry the minimum needed for TV libraries.

type Series struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	LibraryID uint       `gorm:"not null;index" json:"library_id"`
	DirPath   string     `gorm:"not null" json:"dir_path"`
	Title     string     `json:"title"`
	Year      int        `json:"year"`
	TmdbID    *int       `gorm:"index" json:"tmdb_id,omitempty"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Season struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SeriesID  uint      `gorm:"not null;index" json:"series_id"`
	Number    int       `gorm:"not null" json:"number"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Episode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SeasonID  uint       `gorm:"not null;index" json:"season_id"`
	Number    int        `gorm:"not null" json:"number"`
	FilePath  string     `json:"file_path"`
	Title     string     `json:"title"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Artist, Album and Track carry the minimum needed for music libraries.

type Artist struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	LibraryID uint       `gorm:"not null;index" json:"library_id"`
	Name      string     `gorm:"not null" json:"name"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Album struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ArtistID  uint      `gorm:"not null;index" json:"artist_id"`
	Title     string    `gorm:"not null" json:"title"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Track struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AlbumID   uint      `gorm:"not null;index" json:"album_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credits and classification entities shared across movies.

type Actor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	TmdbID    *int      `gorm:"index" json:"tmdb_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MovieActor struct {
	MovieID   uint   `gorm:"primaryKey" json:"movie_id"`
	ActorID   uint   `gorm:"primaryKey" json:"actor_id"`
	Role      string `json:"role"`
	SortOrder int    `json:"sort_order"`
}

type CrewMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	TmdbID    *int      `gorm:"index" json:"tmdb_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MovieCrew struct {
	MovieID      uint   `gorm:"primaryKey" json:"movie_id"`
	CrewMemberID uint   `gorm:"primaryKey" json:"crew_member_id"`
	Job          string `gorm:"primaryKey" json:"job"`
}

type Genre struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

type MovieGenre struct {
	MovieID uint `gorm:"primaryKey" json:"movie_id"`
	GenreID uint `gorm:"primaryKey" json:"genre_id"`
}

type Studio struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

type MovieStudio struct {
	MovieID  uint `gorm:"primaryKey" json:"movie_id"`
	StudioID uint `gorm:"primaryKey" json:"studio_id"`
}

// UnknownFile records a file the classifier could not place. These are shown
// to the user and never deleted automatically.
type UnknownFile struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EntityType   EntityType `gorm:"not null;index:idx_unknown_entity" json:"entity_type"`
	EntityID     uint       `gorm:"not null;index:idx_unknown_entity" json:"entity_id"`
	FilePath     string     `gorm:"not null;uniqueIndex" json:"file_path"`
	FileName     string     `json:"file_name"`
	Size         int64      `json:"size"`
	Extension    string     `json:"extension"`
	Category     string     `json:"category"` // video, image, archive, text, other
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// AppSetting is a generic key/value application setting row.
type AppSetting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IgnorePattern filters files out of the scan before fact gathering.
type IgnorePattern struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Pattern string `gorm:"not null;uniqueIndex" json:"pattern"`
	Glob    bool   `gorm:"not null;default:false" json:"glob"`
}

// ProviderConfig holds per-provider settings such as rate limits.
type ProviderConfig struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	Name            string  `gorm:"not null;uniqueIndex" json:"name"`
	Enabled         bool    `gorm:"not null;default:true" json:"enabled"`
	Priority        int     `gorm:"not null;default:5" json:"priority"`
	RateLimitPerSec float64 `gorm:"not null;default:4" json:"rate_limit_per_sec"`
	APIKey          string  `json:"-"`
	BaseURL         string  `json:"base_url"`
}

// MediaPlayerGroup groups media players that share a library view.
type MediaPlayerGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MediaPlayer is a downstream media-player node (Kodi-style JSON-RPC).
type MediaPlayer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   *uint     `gorm:"index" json:"group_id,omitempty"`
	Name      string    `gorm:"not null" json:"name"`
	Host      string    `gorm:"not null" json:"host"`
	Port      int       `gorm:"not null;default:8080" json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PathMapping translates server library paths to player-visible paths.
type PathMapping struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	PlayerID     uint   `gorm:"not null;index" json:"player_id"`
	LocalPrefix  string `gorm:"not null" json:"local_prefix"`
	RemotePrefix string `gorm:"not null" json:"remote_prefix"`
}

// PlaybackState tracks last reported playback position per player.
type PlaybackState struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlayerID    uint      `gorm:"not null;index" json:"player_id"`
	MovieID     *uint     `gorm:"index" json:"movie_id,omitempty"`
	PositionSec float64   `json:"position_sec"`
	State       string    `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WebhookEvent records a raw webhook received from an upstream ingester.
type WebhookEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Source     string    `gorm:"not null;index" json:"source"` // radarr, sonarr, lidarr
	EventType  string    `json:"event_type"`
	Payload    string    `gorm:"type:text" json:"payload"`
	Processed  bool      `gorm:"not null;default:false;index" json:"processed"`
	ReceivedAt time.Time `json:"received_at"`
}

// ActivityLog is the durable application history; job rows are pruned, log
// entries are what remains.
type ActivityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Category  string    `gorm:"not null;index" json:"category"`
	Message   string    `gorm:"not null" json:"message"`
	Details   string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
