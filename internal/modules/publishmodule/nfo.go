// Package publishmodule materialises library files next to the media from
// the asset cache, including regenerated NFO metadata.
package publishmodule

import (
	"encoding/xml"
	"fmt"

	"gorm.io/gorm"

	"github.com/curatarr/curatarr/internal/database"
)

// Kodi-compatible movie NFO document.
type nfoUniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr,omitempty"`
	Value   string `xml:",chardata"`
}

type nfoRating struct {
	Name  string  `xml:"name,attr"`
	Max   int     `xml:"max,attr"`
	Value float64 `xml:"value"`
	Votes int     `xml:"votes,omitempty"`
}

type nfoRatings struct {
	Ratings []nfoRating `xml:"rating"`
}

type nfoActor struct {
	Name  string `xml:"name"`
	Role  string `xml:"role,omitempty"`
	Order int    `xml:"order"`
}

type nfoMovie struct {
	XMLName       xml.Name      `xml:"movie"`
	Title         string        `xml:"title"`
	OriginalTitle string        `xml:"originaltitle,omitempty"`
	SortTitle     string        `xml:"sorttitle,omitempty"`
	Ratings       *nfoRatings   `xml:"ratings,omitempty"`
	UserRating    *float64      `xml:"userrating,omitempty"`
	Outline       string        `xml:"outline,omitempty"`
	Plot          string        `xml:"plot,omitempty"`
	Tagline       string        `xml:"tagline,omitempty"`
	Runtime       int           `xml:"runtime,omitempty"`
	MPAA          string        `xml:"mpaa,omitempty"`
	UniqueIDs     []nfoUniqueID `xml:"uniqueid"`
	Genres        []string      `xml:"genre"`
	Studios       []string      `xml:"studio"`
	Premiered     string        `xml:"premiered,omitempty"`
	Year          int           `xml:"year,omitempty"`
	Directors     []string      `xml:"director"`
	Credits       []string      `xml:"credits"`
	Actors        []nfoActor    `xml:"actor"`
}

// GenerateNFO renders the movie row and its related tables as a Kodi movie
// NFO. Field locks gate the inputs upstream: the movie row already holds the
// user's protected values, so regeneration never loses an edit.
func GenerateNFO(db *gorm.DB, movie *database.Movie) ([]byte, error) {
	doc := nfoMovie{
		Title:         movie.Title,
		OriginalTitle: movie.OriginalTitle,
		SortTitle:     movie.SortTitle,
		Outline:       movie.Outline,
		Plot:          movie.Plot,
		Tagline:       movie.Tagline,
		Runtime:       movie.RuntimeMin,
		MPAA:          movie.ContentRating,
		Year:          movie.Year,
		UserRating:    movie.UserRating,
	}

	if movie.ReleaseDate != nil {
		doc.Premiered = movie.ReleaseDate.Format("2006-01-02")
	}
	if movie.ProviderRating > 0 {
		doc.Ratings = &nfoRatings{Ratings: []nfoRating{{
			Name:  "themoviedb",
			Max:   10,
			Value: movie.ProviderRating,
			Votes: movie.ProviderVotes,
		}}}
	}

	if movie.TmdbID != nil {
		doc.UniqueIDs = append(doc.UniqueIDs, nfoUniqueID{
			Type: "tmdb", Default: true, Value: fmt.Sprint(*movie.TmdbID),
		})
	}
	if movie.ImdbID != nil {
		doc.UniqueIDs = append(doc.UniqueIDs, nfoUniqueID{Type: "imdb", Value: *movie.ImdbID})
	}

	if err := loadRelated(db, movie.ID, &doc); err != nil {
		return nil, err
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

func loadRelated(db *gorm.DB, movieID uint, doc *nfoMovie) error {
	err := db.Model(&database.Genre{}).
		Joins("JOIN movie_genres ON movie_genres.genre_id = genres.id").
		Where("movie_genres.movie_id = ?", movieID).
		Order("genres.name").
		Pluck("genres.name", &doc.Genres).Error
	if err != nil {
		return err
	}

	err = db.Model(&database.Studio{}).
		Joins("JOIN movie_studios ON movie_studios.studio_id = studios.id").
		Where("movie_studios.movie_id = ?", movieID).
		Order("studios.name").
		Pluck("studios.name", &doc.Studios).Error
	if err != nil {
		return err
	}

	err = db.Model(&database.CrewMember{}).
		Joins("JOIN movie_crews ON movie_crews.crew_member_id = crew_members.id").
		Where("movie_crews.movie_id = ? AND movie_crews.job = ?", movieID, "Director").
		Pluck("crew_members.name", &doc.Directors).Error
	if err != nil {
		return err
	}

	err = db.Model(&database.CrewMember{}).
		Joins("JOIN movie_crews ON movie_crews.crew_member_id = crew_members.id").
		Where("movie_crews.movie_id = ? AND movie_crews.job = ?", movieID, "Writer").
		Pluck("crew_members.name", &doc.Credits).Error
	if err != nil {
		return err
	}

	type actorRow struct {
		Name      string
		Role      string
		SortOrder int
	}
	var actors []actorRow
	err = db.Model(&database.Actor{}).
		Select("actors.name, movie_actors.role, movie_actors.sort_order").
		Joins("JOIN movie_actors ON movie_actors.actor_id = actors.id").
		Where("movie_actors.movie_id = ?", movieID).
		Order("movie_actors.sort_order").
		Scan(&actors).Error
	if err != nil {
		return err
	}
	for _, a := range actors {
		doc.Actors = append(doc.Actors, nfoActor{Name: a.Name, Role: a.Role, Order: a.SortOrder})
	}
	return nil
}

// nfoFileName returns the published NFO name for a movie basename.
func nfoFileName(base string) string {
	return base + ".nfo"
}
