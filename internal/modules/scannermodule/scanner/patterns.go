package scanner

import (
	"fmt"
	"strings"

	"github.com/curatarr/curatarr/internal/database"
)

// SlotDimensionSpec validates image dimensions for an asset slot.
type SlotDimensionSpec struct {
	AspectMin float64
	AspectMax float64
	MinWidth  int
	MinHeight int
}

// Minimum dimensions are tolerated down to 90 percent.
const dimensionTolerance = 0.9

// slotDimensionSpecs maps each image slot to its expected geometry.
var slotDimensionSpecs = map[database.Slot]SlotDimensionSpec{
	database.SlotPoster:    {0.65, 0.72, 500, 700},
	database.SlotFanart:    {1.70, 1.85, 1280, 720},
	database.SlotBanner:    {4.5, 6.0, 758, 140},
	database.SlotClearlogo: {1.5, 4.0, 400, 100},
	database.SlotClearart:  {1.5, 3.0, 500, 200},
	database.SlotDiscart:   {0.95, 1.05, 500, 500},
	database.SlotLandscape: {1.70, 1.85, 1280, 720},
	database.SlotThumb:     {1.3, 1.5, 400, 300},
	database.SlotKeyart:    {0.65, 0.72, 500, 700},
}

// ValidateDimensions reports whether the image geometry fits the slot spec.
func ValidateDimensions(slot database.Slot, width, height int) bool {
	spec, ok := slotDimensionSpecs[slot]
	if !ok || width <= 0 || height <= 0 {
		return false
	}
	aspect := float64(width) / float64(height)
	if aspect < spec.AspectMin*dimensionTolerance || aspect > spec.AspectMax/dimensionTolerance {
		return false
	}
	if float64(width) < float64(spec.MinWidth)*dimensionTolerance {
		return false
	}
	if float64(height) < float64(spec.MinHeight)*dimensionTolerance {
		return false
	}
	return true
}

// slotAliases are well-known alternate names for slots.
var slotAliases = map[string]database.Slot{
	"folder":   database.SlotPoster,
	"cover":    database.SlotPoster,
	"backdrop": database.SlotFanart,
	"logo":     database.SlotClearlogo,
	"disc":     database.SlotDiscart,
}

// ExpectedImageNames generates the accepted base names (extension stripped,
// lower case) for a slot. In standard mode names derive from the main movie
// basename; disc mode uses short names only.
func ExpectedImageNames(slot database.Slot, movieBase string, disc bool) []string {
	s := string(slot)
	names := []string{s}
	for i := 1; i <= 10; i++ {
		names = append(names, fmt.Sprintf("%s%d", s, i))
	}
	for alias, aliasSlot := range slotAliases {
		if aliasSlot == slot {
			names = append(names, alias)
		}
	}
	if !disc && movieBase != "" {
		base := strings.ToLower(movieBase)
		names = append(names, base+"-"+s)
		for i := 1; i <= 10; i++ {
			names = append(names, fmt.Sprintf("%s-%s%d", base, s, i))
		}
	}
	return names
}

// MatchImageSlot classifies an image file against every slot. Exact name
// matches score 100 when the dimensions validate and 85 otherwise; keyword
// substring matches start at 60 and gain 20 for valid dimensions, emitted
// only at 80 or above.
func MatchImageSlot(file *FileFacts, movieBase string, disc bool) (database.Slot, int) {
	name := strings.ToLower(file.BaseName())

	for _, slot := range database.ImageSlots {
		for _, expected := range ExpectedImageNames(slot, movieBase, disc) {
			if name == expected {
				if file.Image != nil && ValidateDimensions(slot, file.Image.Width, file.Image.Height) {
					return slot, 100
				}
				return slot, 85
			}
		}
	}

	for _, slot := range database.ImageSlots {
		if strings.Contains(name, string(slot)) {
			score := 60
			if file.Image != nil && ValidateDimensions(slot, file.Image.Width, file.Image.Height) {
				score += 20
			}
			if score >= 80 {
				return slot, score
			}
		}
	}

	return "", 0
}
