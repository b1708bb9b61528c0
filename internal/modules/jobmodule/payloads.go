package jobmodule

// Job payloads shared by enqueuers and handlers. Every field is JSON so a
// payload survives the round trip through the jobs table.

// DirectoryScanPayload drives one directory-scan job.
type DirectoryScanPayload struct {
	LibraryID uint   `json:"library_id"`
	DirPath   string `json:"dir_path"`
	Hint      string `json:"hint,omitempty"`
	TmdbID    int    `json:"tmdb_id,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// EnrichPayload drives one enrich-metadata job.
type EnrichPayload struct {
	MovieID uint `json:"movie_id"`
	Force   bool `json:"force,omitempty"`
}

// PublishPayload drives one publish job.
type PublishPayload struct {
	MovieID uint `json:"movie_id"`
	Force   bool `json:"force,omitempty"`
}

// TrailerPayload drives one download-trailer job.
type TrailerPayload struct {
	MovieID uint   `json:"movie_id"`
	URL     string `json:"url"`
}

// NotifyPlayersPayload drives one notify-kodi job. An empty directory asks
// players for a full library rescan.
type NotifyPlayersPayload struct {
	Directory string `json:"directory,omitempty"`
}

// WebhookPayload points a webhook-received job at its stored event row.
type WebhookPayload struct {
	WebhookEventID uint `json:"webhook_event_id"`
}
