package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"postcraft/internal/caption"
	"postcraft/internal/layout"
	"postcraft/internal/pkg/errors"
)

func newRasterizer(t *testing.T) *Rasterizer {
	t.Helper()
	r, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func fit(t *testing.T, r *Rasterizer, text string) layout.Result {
	t.Helper()
	res, err := layout.Fit(text, layout.Options{
		MaxWidthPx:      950,
		MaxHeightPx:     1012,
		StartFontSizePx: 64,
		MinFontSizePx:   40,
	}, r.Measure)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return res
}

func TestMeasureGrowsWithTextAndSize(t *testing.T) {
	r := newRasterizer(t)

	short := r.Measure("abc", 40)
	long := r.Measure("abcdef", 40)
	bigger := r.Measure("abc", 80)

	if short <= 0 {
		t.Fatalf("expected positive width, got %g", short)
	}
	if long <= short {
		t.Errorf("expected longer text to be wider: %g vs %g", long, short)
	}
	if bigger <= short {
		t.Errorf("expected larger size to be wider: %g vs %g", bigger, short)
	}
	if r.Measure("abc", 0) != 0 {
		t.Error("expected zero width for zero size")
	}
}

func TestRasterizeProducesDecodableJPEG(t *testing.T) {
	r := newRasterizer(t)
	cat := caption.DefaultCatalog()
	lay := fit(t, r, "The best time to plant a tree was 20 years ago. The second best time is now.")

	for i, bg := range cat {
		img, err := r.Rasterize(bg, lay, 1080, 1350)
		if err != nil {
			t.Fatalf("preset %d: %v", i, err)
		}
		if img.MimeType != MimeJPEG || img.Ext != ExtJPEG {
			t.Errorf("preset %d: unexpected type %s/%s", i, img.MimeType, img.Ext)
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Bytes))
		if err != nil {
			t.Fatalf("preset %d: decode: %v", i, err)
		}
		if cfg.Width != 1080 || cfg.Height != 1350 {
			t.Errorf("preset %d: expected 1080x1350, got %dx%d", i, cfg.Width, cfg.Height)
		}
	}
}

func TestRasterizeIsDeterministic(t *testing.T) {
	r := newRasterizer(t)
	bg := caption.DefaultCatalog()[4]
	lay := fit(t, r, "Deterministic output for identical inputs")

	a, err := r.Rasterize(bg, lay, 540, 675)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Rasterize(bg, lay, 540, 675)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Error("expected byte-identical output")
	}
}

func TestRasterizeEmptyLayoutPaintsBackgroundOnly(t *testing.T) {
	r := newRasterizer(t)
	bg := caption.BackgroundSpec{
		Kind:       caption.KindSolid,
		ColorStops: []color.NRGBA{caption.MustHex("#1c1e21")},
		TextColor:  caption.MustHex("#ffffff"),
	}
	img, err := r.Rasterize(bg, layout.Result{Lines: []string{}, FontSizePx: 40}, 64, 80)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	cr, cg, cb, _ := decoded.At(32, 40).RGBA()
	if near(cr>>8, 0x1c) && near(cg>>8, 0x1e) && near(cb>>8, 0x21) {
		return
	}
	t.Errorf("expected solid fill near #1c1e21, got %d,%d,%d", cr>>8, cg>>8, cb>>8)
}

func TestRasterizeErrors(t *testing.T) {
	r := newRasterizer(t)
	good := caption.DefaultCatalog()[0]

	tests := []struct {
		name string
		bg   caption.BackgroundSpec
		w, h int
	}{
		{"zero width", good, 0, 100},
		{"oversized", good, 100000, 100},
		{"no stops", caption.BackgroundSpec{Kind: caption.KindSolid}, 100, 100},
		{"unknown kind", caption.BackgroundSpec{Kind: "radial", ColorStops: good.ColorStops}, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Rasterize(tt.bg, layout.Result{}, tt.w, tt.h)
			if !errors.IsCode(err, errors.CodeRaster) {
				t.Errorf("expected RASTER_ERROR, got %v", err)
			}
		})
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{FontTTF: []byte("not a font")}); !errors.IsCode(err, errors.CodeRaster) {
		t.Errorf("expected RASTER_ERROR for bad font, got %v", err)
	}
	if _, err := New(Options{Quality: 101}); !errors.IsCode(err, errors.CodeRaster) {
		t.Errorf("expected RASTER_ERROR for bad quality, got %v", err)
	}
}

func TestGradientEndpoints(t *testing.T) {
	stops := []color.NRGBA{caption.MustHex("#000000"), caption.MustHex("#ffffff")}
	dst := image.NewNRGBA(image.Rect(0, 0, 2, 11))
	paintBackground(dst, stops)

	if got := dst.NRGBAAt(0, 0); got != stops[0] {
		t.Errorf("top row: expected %v, got %v", stops[0], got)
	}
	if got := dst.NRGBAAt(1, 10); got != stops[1] {
		t.Errorf("bottom row: expected %v, got %v", stops[1], got)
	}
	mid := dst.NRGBAAt(0, 5)
	if mid.R < 120 || mid.R > 135 {
		t.Errorf("expected mid-grey halfway, got %v", mid)
	}
}

func TestGradientThreeStops(t *testing.T) {
	stops := []color.NRGBA{
		caption.MustHex("#ff0000"),
		caption.MustHex("#00ff00"),
		caption.MustHex("#0000ff"),
	}
	if got := gradientAt(stops, 0.5); got != stops[1] {
		t.Errorf("expected middle stop at t=0.5, got %v", got)
	}
	if got := gradientAt(stops, 1); got != stops[2] {
		t.Errorf("expected last stop at t=1, got %v", got)
	}
}

func near(got uint32, want uint32) bool {
	d := int(got) - int(want)
	return d >= -6 && d <= 6
}
