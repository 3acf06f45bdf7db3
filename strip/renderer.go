package strip

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	barCaptionHeight = 18
	barMaxWidth      = 2048
)

// RenderStripBar draws the strip as a row of cells in index order with a
// caption. Cells shrink to fit barMaxWidth but are at least one pixel wide.
func RenderStripBar(snapshot map[int]LedState, numLEDs, cellSize int) *image.RGBA {
	if numLEDs <= 0 {
		numLEDs = 1
	}
	if cellSize <= 0 {
		cellSize = 6
	}
	if numLEDs*cellSize > barMaxWidth {
		cellSize = max(1, barMaxWidth/numLEDs)
	}

	width := numLEDs * cellSize
	height := cellSize*2 + barCaptionHeight
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{20, 20, 20, 255}), image.Point{}, draw.Src)

	for i := 0; i < numLEDs; i++ {
		c := unlitColor
		if st, ok := snapshot[i]; ok {
			c = color.RGBA{st.Color.R, st.Color.G, st.Color.B, 255}
		}
		cell := image.Rect(i*cellSize, 0, (i+1)*cellSize, cellSize*2)
		draw.Draw(img, cell, image.NewUniform(c), image.Point{}, draw.Src)
	}

	lit := 0
	for i := range snapshot {
		if i >= 0 && i < numLEDs {
			lit++
		}
	}
	drawText(img, 4, cellSize*2+13, fmt.Sprintf("%d/%d lit", lit, numLEDs), color.RGBA{255, 255, 255, 255})
	return img
}

// WriteStripBarPNG renders the strip bar and encodes it as PNG
func WriteStripBarPNG(w io.Writer, snapshot map[int]LedState, numLEDs, cellSize int) error {
	return png.Encode(w, RenderStripBar(snapshot, numLEDs, cellSize))
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
