package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// patternImage renders a fixed 18x16 value grid at the given pixel scale, so
// the scaled variants are exact upsamplings of the same picture.
func patternImage(scale int, invert bool) *image.Gray {
	const gridW, gridH = 18, 16
	img := image.NewGray(image.Rect(0, 0, gridW*scale, gridH*scale))
	for y := 0; y < gridH*scale; y++ {
		for x := 0; x < gridW*scale; x++ {
			v := byte(((x/scale)*31 + (y/scale)*57) % 251)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestDHashInvariantUnderScaling(t *testing.T) {
	small := DHash(patternImage(1, false))
	large := DHash(patternImage(4, false))
	assert.Equal(t, small, large)
}

func TestDHashSeparatesDistinctImages(t *testing.T) {
	a := DHash(patternImage(1, false))
	b := DHash(patternImage(1, true))
	assert.Greater(t, HammingDistance(a, b), 20)
}

func TestHammingDistance(t *testing.T) {
	assert.Zero(t, HammingDistance(0xDEADBEEF, 0xDEADBEEF))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 2, HammingDistance(0b1010, 0b0110))
}
