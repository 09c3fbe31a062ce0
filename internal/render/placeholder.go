package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// A4 media box in PDF points (1/72 inch).
const (
	a4WidthPoints  = 595
	a4HeightPoints = 842
)

var (
	paperColor = color.RGBA{R: 0xFD, G: 0xF5, B: 0xE6, A: 0xFF}
	inkColor   = color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xFF}
)

// A4Pixels returns the pixel dimensions of an A4 page at the given DPI.
func A4Pixels(dpi int) (width, height int) {
	return a4WidthPoints * dpi / 72, a4HeightPoints * dpi / 72
}

// Placeholder synthesizes a blank page with the page number overlaid. It is
// the last resort of the fallback chain and has no dependency that can fail,
// which is what guarantees every page number ends up with a page record.
func Placeholder(pageNumber, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: paperColor}, image.Point{}, draw.Src)

	label := fmt.Sprintf("Page %d", pageNumber)
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: inkColor},
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I((width - textWidth) / 2),
			Y: fixed.I(height / 2),
		},
	}
	d.DrawString(label)
	return img
}
