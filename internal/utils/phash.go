package utils

import (
	"image"
	"image/color"
	"math/bits"
)

// DHash computes a 64-bit difference hash of the image. The image is reduced
// to a 9x8 grayscale grid; each bit records whether a pixel is brighter than
// its right neighbor. Visually similar images produce hashes within a small
// Hamming distance of each other.
func DHash(img image.Image) uint64 {
	const (
		hashWidth  = 9
		hashHeight = 8
	)

	gray := resizeGray(img, hashWidth, hashHeight)

	var hash uint64
	bit := 0
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashWidth-1; x++ {
			if gray[y][x] > gray[y][x+1] {
				hash |= 1 << uint(63-bit)
			}
			bit++
		}
	}

	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// resizeGray downsamples the image to w x h using box averaging and converts
// to grayscale.
func resizeGray(img image.Image, w, h int) [][]float64 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	out := make([][]float64, h)
	for y := range out {
		out[y] = make([]float64, w)
	}

	if srcW == 0 || srcH == 0 {
		return out
	}

	for y := 0; y < h; y++ {
		y0 := bounds.Min.Y + y*srcH/h
		y1 := bounds.Min.Y + (y+1)*srcH/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for x := 0; x < w; x++ {
			x0 := bounds.Min.X + x*srcW/w
			x1 := bounds.Min.X + (x+1)*srcW/w
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			var count int
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					g := color.GrayModel.Convert(img.At(sx, sy)).(color.Gray)
					sum += float64(g.Y)
					count++
				}
			}
			out[y][x] = sum / float64(count)
		}
	}

	return out
}
