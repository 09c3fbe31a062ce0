package render

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestA4Pixels(t *testing.T) {
	w, h := A4Pixels(150)
	assert.Equal(t, 1239, w)
	assert.Equal(t, 1754, h)

	w, h = A4Pixels(72)
	assert.Equal(t, 595, w)
	assert.Equal(t, 842, h)
}

func TestPlaceholderDimensionsAndBackground(t *testing.T) {
	img := Placeholder(3, 600, 840)
	b := img.Bounds()
	assert.Equal(t, 600, b.Dx())
	assert.Equal(t, 840, b.Dy())

	// Corners stay paper-colored; only the centered label is drawn over it.
	assert.Equal(t, color.RGBA{R: 0xFD, G: 0xF5, B: 0xE6, A: 0xFF}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 0xFD, G: 0xF5, B: 0xE6, A: 0xFF}, img.RGBAAt(599, 839))
}

func TestPlaceholderDeterministic(t *testing.T) {
	a := Placeholder(12, 300, 420)
	b := Placeholder(12, 300, 420)
	assert.Equal(t, a.Pix, b.Pix)
}

func TestPlaceholderDiffersByPageNumber(t *testing.T) {
	a := Placeholder(1, 300, 420)
	b := Placeholder(2, 300, 420)
	assert.NotEqual(t, a.Pix, b.Pix)
}
