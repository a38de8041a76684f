package assets

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder dimensions match the original deck renderer's stand-in figures.
const (
	placeholderWidth  = 640
	placeholderHeight = 480
)

var (
	placeholderBG     = color.RGBA{R: 200, G: 240, B: 240, A: 255}
	placeholderBorder = color.RGBA{R: 100, G: 150, B: 150, A: 255}
	placeholderText   = color.RGBA{R: 50, G: 100, B: 100, A: 255}
)

// writePlaceholder renders a fixed-size PNG carrying diagnostic text about the
// missing figure so the compiled deck shows what was requested instead of
// breaking the build.
func writePlaceholder(path, requestedPath string) error {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderBG}, image.Point{}, draw.Src)

	// 2px border.
	for x := 0; x < placeholderWidth; x++ {
		for _, y := range []int{0, 1, placeholderHeight - 2, placeholderHeight - 1} {
			img.Set(x, y, placeholderBorder)
		}
	}
	for y := 0; y < placeholderHeight; y++ {
		for _, x := range []int{0, 1, placeholderWidth - 2, placeholderWidth - 1} {
			img.Set(x, y, placeholderBorder)
		}
	}

	drawCenteredText(img, "image not found", placeholderHeight/2-20)
	drawCenteredText(img, fmt.Sprintf("requested: %s", requestedPath), placeholderHeight/2+20)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create placeholder dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create placeholder file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode placeholder png: %w", err)
	}
	return nil
}

func drawCenteredText(img *image.RGBA, text string, y int) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	x := (placeholderWidth - width) / 2
	if x < 8 {
		x = 8
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: placeholderText},
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
