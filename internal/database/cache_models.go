package database

import (
	"time"
)

// EntityType tags a polymorphic association on cache, library and catalog
// rows. There is no cross-table FK for these; referential integrity is
// enforced by the repository layer and the cascade triggers.
type EntityType string

const (
	EntityMovie   EntityType = "movie"
	EntitySeries  EntityType = "series"
	EntitySeason  EntityType = "season"
	EntityEpisode EntityType = "episode"
	EntityArtist  EntityType = "artist"
	EntityAlbum   EntityType = "album"
	EntityActor   EntityType = "actor"
)

// Slot names an asset role on an entity.
type Slot string

const (
	SlotPoster    Slot = "poster"
	SlotFanart    Slot = "fanart"
	SlotBanner    Slot = "banner"
	SlotClearlogo Slot = "clearlogo"
	SlotClearart  Slot = "clearart"
	SlotDiscart   Slot = "discart"
	SlotLandscape Slot = "landscape"
	SlotThumb     Slot = "thumb"
	SlotKeyart    Slot = "keyart"
	SlotTrailer   Slot = "trailer"
	SlotSubtitle  Slot = "subtitle"
	SlotTheme     Slot = "theme"
	SlotNFO       Slot = "nfo"
	SlotMainMovie Slot = "main"

	SlotDeletedScene Slot = "deletedscene"
)

// ImageSlots are the slots that hold images, in publish order.
var ImageSlots = []Slot{
	SlotPoster, SlotFanart, SlotBanner, SlotClearlogo, SlotClearart,
	SlotDiscart, SlotLandscape, SlotThumb, SlotKeyart,
}

// AssetSource records where cache bytes came from.
type AssetSource string

const (
	SourceProvider AssetSource = "provider"
	SourceLocal    AssetSource = "local"
	SourceUser     AssetSource = "user"
)

// CacheFileKind selects one of the four cache tables.
type CacheFileKind string

const (
	CacheKindImage CacheFileKind = "image"
	CacheKindVideo CacheFileKind = "video"
	CacheKindAudio CacheFileKind = "audio"
	CacheKindText  CacheFileKind = "text"
)

// TextKind classifies text cache rows.
type TextKind string

const (
	TextKindNFO      TextKind = "nfo"
	TextKindSubtitle TextKind = "subtitle"
)

// AudioKind classifies audio cache rows.
type AudioKind string

const (
	AudioKindTheme   AudioKind = "theme"
	AudioKindUnknown AudioKind = "unknown"
)

// CacheFileCommon carries the columns shared by all four cache tables. Cache
// rows are permanent: they survive deletion of any library file referencing
// them, and are removed only by garbage collection once orphaned.
//
// The composite index serves the dominant list query (all assets of one slot
// for one entity, best first) with a single range scan.
type CacheFileCommon struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityType EntityType `gorm:"not null;index:,composite:entity_slot,priority:1" json:"entity_type"`
	EntityID   uint       `gorm:"not null;index:,composite:entity_slot,priority:2" json:"entity_id"`
	Slot       Slot       `gorm:"index:,composite:entity_slot,priority:3" json:"slot"`
	Score      float64    `gorm:"index:,composite:entity_slot,priority:4,sort:desc" json:"score"`

	FilePath    string      `gorm:"not null" json:"file_path"`
	FileName    string      `json:"file_name"`
	Size        int64       `json:"size"`
	ContentHash string      `gorm:"not null;index" json:"content_hash"`
	Source      AssetSource `gorm:"not null;default:local" json:"source"`
	SourceURL   string      `json:"source_url,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	Locked      bool        `gorm:"not null;default:false" json:"locked"`

	DiscoveredAt   time.Time `gorm:"index:,composite:entity_slot,priority:5,sort:desc" json:"discovered_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// CacheImageFile is a content-addressed cached image.
type CacheImageFile struct {
	CacheFileCommon
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Format         string `json:"format"`
	PerceptualHash int64  `gorm:"index" json:"perceptual_hash"`
}

func (CacheImageFile) TableName() string { return "cache_image_files" }

// CacheVideoFile is a content-addressed cached video (trailer or probed main
// movie). QuickHash allows probe results to be reused without re-reading the
// whole file.
type CacheVideoFile struct {
	CacheFileCommon
	QuickHash    string  `gorm:"index" json:"quick_hash"`
	Codec        string  `json:"codec"`
	DurationSec  float64 `json:"duration_sec"`
	Bitrate      int64   `json:"bitrate"`
	HDRFormat    string  `json:"hdr_format,omitempty"`
	AudioSummary string  `json:"audio_summary,omitempty"`
}

func (CacheVideoFile) TableName() string { return "cache_video_files" }

// CacheAudioFile is a content-addressed cached audio file (theme music).
type CacheAudioFile struct {
	CacheFileCommon
	AudioKind   AudioKind `gorm:"not null;default:unknown" json:"audio_kind"`
	DurationSec float64   `json:"duration_sec"`
}

func (CacheAudioFile) TableName() string { return "cache_audio_files" }

// CacheTextFile is a content-addressed cached text file (NFO or subtitle).
type CacheTextFile struct {
	CacheFileCommon
	TextKind         TextKind `gorm:"not null" json:"text_kind"`
	SubtitleLanguage string   `json:"subtitle_language,omitempty"`
	NFOValid         bool     `json:"nfo_valid"`
}

func (CacheTextFile) TableName() string { return "cache_text_files" }

// LibraryFileCommon carries the columns shared by the four library-file
// tables. Library files are ephemeral: each row references exactly one cache
// row (FK with CASCADE) and the on-disk layout can always be rebuilt from
// cache.
type LibraryFileCommon struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CacheFileID uint      `gorm:"not null;index" json:"cache_file_id"`
	FilePath    string    `gorm:"not null;index" json:"file_path"`
	PublishedAt time.Time `json:"published_at"`
}

type LibraryImageFile struct {
	LibraryFileCommon
	CacheFile CacheImageFile `gorm:"foreignKey:CacheFileID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LibraryImageFile) TableName() string { return "library_image_files" }

type LibraryVideoFile struct {
	LibraryFileCommon
	CacheFile CacheVideoFile `gorm:"foreignKey:CacheFileID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LibraryVideoFile) TableName() string { return "library_video_files" }

type LibraryAudioFile struct {
	LibraryFileCommon
	CacheFile CacheAudioFile `gorm:"foreignKey:CacheFileID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LibraryAudioFile) TableName() string { return "library_audio_files" }

type LibraryTextFile struct {
	LibraryFileCommon
	CacheFile CacheTextFile `gorm:"foreignKey:CacheFileID;constraint:OnDelete:CASCADE" json:"-"`
}

func (LibraryTextFile) TableName() string { return "library_text_files" }

// ProviderAsset is a catalog row for a candidate asset offered by a metadata
// provider. Uniqueness on (entity, asset type, provider URL) keeps repeated
// enrichment runs idempotent.
type ProviderAsset struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EntityType  EntityType `gorm:"not null;uniqueIndex:idx_provider_asset,priority:1" json:"entity_type"`
	EntityID    uint       `gorm:"not null;uniqueIndex:idx_provider_asset,priority:2" json:"entity_id"`
	AssetType   Slot       `gorm:"not null;uniqueIndex:idx_provider_asset,priority:3" json:"asset_type"`
	Provider    string     `gorm:"not null" json:"provider"`
	ProviderURL string     `gorm:"not null;uniqueIndex:idx_provider_asset,priority:4" json:"provider_url"`

	Analyzed       bool    `gorm:"not null;default:false" json:"analyzed"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	DurationSec    float64 `json:"duration_sec,omitempty"`
	Language       string  `json:"language,omitempty"`
	ContentHash    string  `json:"content_hash,omitempty"`
	PerceptualHash int64   `json:"perceptual_hash,omitempty"`
	Score          float64 `gorm:"index" json:"score"`

	Selected   bool `gorm:"not null;default:false" json:"selected"`
	Rejected   bool `gorm:"not null;default:false" json:"rejected"`
	Downloaded bool `gorm:"not null;default:false" json:"downloaded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
