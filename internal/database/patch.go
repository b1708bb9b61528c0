package database

import (
	"gorm.io/gorm"
)

// MoviePatch is a typed partial update for a movie row. Nil fields are left
// untouched; the repository translates set fields into a parameterised
// UPDATE, which keeps dynamic field selection out of string-assembled SQL.
type MoviePatch struct {
	Title         *string
	OriginalTitle *string
	SortTitle     *string
	Tagline       *string
	Plot          *string
	Outline       *string
	Year          *int
	RuntimeMin    *int
	ContentRating *string
	UserRating    *float64
	Monitored     *bool

	TmdbID *int
	ImdbID *string

	EnrichmentPriority *int
}

// lockColumns maps patch fields to their lock column names. Applying a patch
// from a user sets the corresponding locks; automation consults them first.
func (p *MoviePatch) fields() map[string]interface{} {
	out := map[string]interface{}{}
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.OriginalTitle != nil {
		out["original_title"] = *p.OriginalTitle
	}
	if p.SortTitle != nil {
		out["sort_title"] = *p.SortTitle
	}
	if p.Tagline != nil {
		out["tagline"] = *p.Tagline
	}
	if p.Plot != nil {
		out["plot"] = *p.Plot
	}
	if p.Outline != nil {
		out["outline"] = *p.Outline
	}
	if p.Year != nil {
		out["year"] = *p.Year
	}
	if p.RuntimeMin != nil {
		out["runtime_min"] = *p.RuntimeMin
	}
	if p.ContentRating != nil {
		out["content_rating"] = *p.ContentRating
	}
	if p.UserRating != nil {
		out["user_rating"] = *p.UserRating
	}
	if p.Monitored != nil {
		out["monitored"] = *p.Monitored
	}
	if p.TmdbID != nil {
		out["tmdb_id"] = *p.TmdbID
	}
	if p.ImdbID != nil {
		out["imdb_id"] = *p.ImdbID
	}
	if p.EnrichmentPriority != nil {
		out["enrichment_priority"] = *p.EnrichmentPriority
	}
	return out
}

// metadataLockColumns names the lock column guarding each patchable metadata
// column. Columns without a lock (monitored, priority) are absent.
var metadataLockColumns = map[string]string{
	"title":          "title_locked",
	"original_title": "original_title_locked",
	"sort_title":     "sort_title_locked",
	"tagline":        "tagline_locked",
	"plot":           "plot_locked",
	"outline":        "outline_locked",
	"year":           "year_locked",
	"content_rating": "content_rating_locked",
}

// ApplyUserPatch applies the patch as a user-initiated write: every written
// metadata column also gets its lock set.
func ApplyUserPatch(db *gorm.DB, movieID uint, patch *MoviePatch) error {
	fields := patch.fields()
	if len(fields) == 0 {
		return nil
	}
	for column := range fields {
		if lock, ok := metadataLockColumns[column]; ok {
			fields[lock] = true
		}
	}
	return db.Model(&Movie{}).Where("id = ?", movieID).Updates(fields).Error
}

// ApplyAutomationPatch applies the patch as an automation write: columns
// whose lock is set on the current row are dropped unless force is true.
// Returns the column names actually written.
func ApplyAutomationPatch(db *gorm.DB, movie *Movie, patch *MoviePatch, force bool) ([]string, error) {
	fields := patch.fields()
	if len(fields) == 0 {
		return nil, nil
	}

	if !force {
		locked := movieLockState(movie)
		for column := range fields {
			if lockCol, ok := metadataLockColumns[column]; ok && locked[lockCol] {
				delete(fields, column)
			}
		}
	}

	if len(fields) == 0 {
		return nil, nil
	}

	written := make([]string, 0, len(fields))
	for column := range fields {
		written = append(written, column)
	}

	err := db.Model(&Movie{}).Where("id = ?", movie.ID).Updates(fields).Error
	return written, err
}

func movieLockState(m *Movie) map[string]bool {
	return map[string]bool{
		"title_locked":          m.TitleLocked,
		"original_title_locked": m.OriginalTitleLocked,
		"sort_title_locked":     m.SortTitleLocked,
		"tagline_locked":        m.TaglineLocked,
		"plot_locked":           m.PlotLocked,
		"outline_locked":        m.OutlineLocked,
		"year_locked":           m.YearLocked,
		"content_rating_locked": m.ContentRatingLocked,
	}
}
