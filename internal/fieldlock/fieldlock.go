// Package fieldlock implements the lock policy that protects user edits from
// automated overwrites. Every lockable field and asset slot has a boolean
// lock column on its entity; user writes set the lock, automation consults it.
package fieldlock

import (
	"fmt"

	"github.com/curatarr/curatarr/internal/database"
)

// Origin identifies who initiated a write.
type Origin int

const (
	// OriginUser marks writes coming from a user action (API or WebSocket).
	OriginUser Origin = iota
	// OriginAutomation marks writes coming from jobs and scheduled work.
	OriginAutomation
)

// Allowed reports whether a write may proceed against a field with the given
// lock state. User writes always proceed (and set the lock); automation is
// blocked by a lock unless force is passed.
func Allowed(locked bool, origin Origin, force bool) bool {
	if origin == OriginUser {
		return true
	}
	return !locked || force
}

// LocksAfterWrite returns the lock state a field should have after a write
// from the given origin. User writes lock the field; automation leaves the
// lock as it was.
func LocksAfterWrite(locked bool, origin Origin) bool {
	if origin == OriginUser {
		return true
	}
	return locked
}

// SlotLocked reports whether the movie's asset slot is locked. Slots with no
// lock column (theme, main movie) are never locked.
func SlotLocked(m *database.Movie, slot database.Slot) bool {
	switch slot {
	case database.SlotPoster:
		return m.PosterLocked
	case database.SlotFanart:
		return m.FanartLocked
	case database.SlotBanner:
		return m.BannerLocked
	case database.SlotClearlogo:
		return m.ClearlogoLocked
	case database.SlotClearart:
		return m.ClearartLocked
	case database.SlotDiscart:
		return m.DiscartLocked
	case database.SlotLandscape:
		return m.LandscapeLocked
	case database.SlotThumb:
		return m.ThumbLocked
	case database.SlotKeyart:
		return m.KeyartLocked
	case database.SlotTrailer:
		return m.TrailerLocked
	case database.SlotNFO:
		return m.NfoLocked
	}
	return false
}

// SetSlotLock updates the movie's lock for the slot. Returns the column name
// to persist, or an error for slots without a lock column.
func SetSlotLock(m *database.Movie, slot database.Slot, locked bool) (string, error) {
	switch slot {
	case database.SlotPoster:
		m.PosterLocked = locked
		return "poster_locked", nil
	case database.SlotFanart:
		m.FanartLocked = locked
		return "fanart_locked", nil
	case database.SlotBanner:
		m.BannerLocked = locked
		return "banner_locked", nil
	case database.SlotClearlogo:
		m.ClearlogoLocked = locked
		return "clearlogo_locked", nil
	case database.SlotClearart:
		m.ClearartLocked = locked
		return "clearart_locked", nil
	case database.SlotDiscart:
		m.DiscartLocked = locked
		return "discart_locked", nil
	case database.SlotLandscape:
		m.LandscapeLocked = locked
		return "landscape_locked", nil
	case database.SlotThumb:
		m.ThumbLocked = locked
		return "thumb_locked", nil
	case database.SlotKeyart:
		m.KeyartLocked = locked
		return "keyart_locked", nil
	case database.SlotTrailer:
		m.TrailerLocked = locked
		return "trailer_locked", nil
	case database.SlotNFO:
		m.NfoLocked = locked
		return "nfo_locked", nil
	}
	return "", fmt.Errorf("slot %q has no lock column", slot)
}

// slotLockColumns lists every lock column cleared by a reset-to-provider
// action, metadata fields included.
var slotLockColumns = []string{
	"title_locked", "original_title_locked", "sort_title_locked",
	"tagline_locked", "plot_locked", "outline_locked",
	"year_locked", "content_rating_locked",
	"poster_locked", "fanart_locked", "banner_locked",
	"clearlogo_locked", "clearart_locked", "discart_locked",
	"landscape_locked", "thumb_locked", "keyart_locked",
	"trailer_locked", "nfo_locked",
}

// ResetColumns returns the column set a reset-to-provider action clears.
// Unlocking never rewrites values; the subsequent enrichment job does.
func ResetColumns() map[string]interface{} {
	cols := make(map[string]interface{}, len(slotLockColumns))
	for _, c := range slotLockColumns {
		cols[c] = false
	}
	return cols
}
