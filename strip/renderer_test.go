package strip

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"
)

func TestRenderStripBar_Cells(t *testing.T) {
	snap := map[int]LedState{
		0: {Color: Color{R: 255}},
		3: {Color: Color{B: 200}},
	}
	img := RenderStripBar(snap, 4, 10)

	if img.Bounds().Dx() != 40 {
		t.Fatalf("width = %d, want 40", img.Bounds().Dx())
	}
	if img.Bounds().Dy() != 20+barCaptionHeight {
		t.Fatalf("height = %d", img.Bounds().Dy())
	}

	checks := []struct {
		x    int
		want color.RGBA
	}{
		{5, color.RGBA{255, 0, 0, 255}},
		{15, unlitColor},
		{35, color.RGBA{0, 0, 200, 255}},
	}
	for _, c := range checks {
		if got := img.RGBAAt(c.x, 5); got != c.want {
			t.Errorf("pixel at x=%d = %v, want %v", c.x, got, c.want)
		}
	}
}

func TestRenderStripBar_ShrinksLongStrips(t *testing.T) {
	img := RenderStripBar(nil, 1000, 6)
	if w := img.Bounds().Dx(); w > barMaxWidth || w < 1000 {
		t.Errorf("width = %d, want between 1000 and %d", w, barMaxWidth)
	}

	img = RenderStripBar(nil, 5000, 6)
	if w := img.Bounds().Dx(); w != 5000 {
		t.Errorf("width = %d, want one pixel per LED", w)
	}
}

func TestWriteStripBarPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStripBarPNG(&buf, nil, 10, 4); err != nil {
		t.Fatalf("WriteStripBarPNG: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
