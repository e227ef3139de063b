// Package raster paints a background and a wrapped text block onto a fixed
// canvas and encodes it as JPEG.
package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"postcraft/internal/caption"
	"postcraft/internal/layout"
	"postcraft/internal/pkg/errors"
)

const (
	// DefaultQuality trades fidelity for size; outputs are feed previews.
	DefaultQuality = 92
	// MimeJPEG is the content type of every encoded image.
	MimeJPEG = "image/jpeg"
	// ExtJPEG is the file extension matching MimeJPEG.
	ExtJPEG = "jpg"

	maxCanvasSide = 8192
)

// Shadow is the drop shadow painted under every glyph.
type Shadow struct {
	Color   color.NRGBA
	OffsetX int
	OffsetY int
	// Sigma is the gaussian blur radius.
	Sigma float64
}

// DefaultShadow is a faint, slightly blurred shadow that reads on any preset.
var DefaultShadow = Shadow{
	Color:   color.NRGBA{A: 38},
	OffsetX: 2,
	OffsetY: 2,
	Sigma:   2,
}

// Image is one encoded canvas, owned by the run that produced it.
type Image struct {
	ItemID   string
	Bytes    []byte
	MimeType string
	Ext      string
	Width    int
	Height   int
}

// Options configures a Rasterizer.
type Options struct {
	// FontTTF overrides the bundled Go Bold face.
	FontTTF []byte
	// Quality is the JPEG quality, 1..100.
	Quality int
	Shadow  *Shadow
}

// Rasterizer owns the parsed font and a cache of sized faces. It is safe
// for concurrent use, though the pipeline drives it from one goroutine.
type Rasterizer struct {
	font    *opentype.Font
	quality int
	shadow  Shadow

	mu    sync.Mutex
	faces map[float64]font.Face
}

// New parses the font and returns a ready Rasterizer.
func New(opts Options) (*Rasterizer, error) {
	ttf := opts.FontTTF
	if len(ttf) == 0 {
		ttf = gobold.TTF
	}
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRaster, "raster.new", "parse font")
	}

	q := opts.Quality
	if q == 0 {
		q = DefaultQuality
	}
	if q < 1 || q > 100 {
		return nil, errors.Newf(errors.CodeRaster, "jpeg quality %d out of range", q)
	}

	shadow := DefaultShadow
	if opts.Shadow != nil {
		shadow = *opts.Shadow
	}

	return &Rasterizer{
		font:    f,
		quality: q,
		shadow:  shadow,
		faces:   map[float64]font.Face{},
	}, nil
}

// Close releases cached faces.
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, f := range r.faces {
		_ = f.Close()
		delete(r.faces, k)
	}
	return nil
}

func (r *Rasterizer) face(sizePx float64) (font.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.faces[sizePx]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	r.faces[sizePx] = f
	return f, nil
}

// Measure is a layout.MeasureFunc backed by the rasterizer's font.
func (r *Rasterizer) Measure(text string, fontSizePx float64) float64 {
	if fontSizePx <= 0 {
		return 0
	}
	f, err := r.face(fontSizePx)
	if err != nil {
		return 0
	}
	return fromFixed(font.MeasureString(f, text))
}

var _ layout.MeasureFunc = (*Rasterizer)(nil).Measure

// Rasterize paints bg, draws every line centered with a drop shadow and
// encodes the canvas.
func (r *Rasterizer) Rasterize(bg caption.BackgroundSpec, lay layout.Result, width, height int) (Image, error) {
	const op = "raster.rasterize"

	if width <= 0 || height <= 0 || width > maxCanvasSide || height > maxCanvasSide {
		e := errors.Newf(errors.CodeRaster, "cannot allocate %dx%d canvas", width, height)
		e.Op = op
		return Image{}, e
	}
	if err := bg.Validate(); err != nil {
		return Image{}, errors.WrapWithCode(err, errors.CodeRaster, op, "invalid background")
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	paintBackground(canvas, bg.ColorStops)

	if len(lay.Lines) > 0 {
		face, err := r.face(lay.FontSizePx)
		if err != nil {
			return Image{}, errors.WrapWithCode(err, errors.CodeRaster, op, "create font face")
		}

		if r.shadow.Color.A > 0 {
			layer := image.NewNRGBA(canvas.Bounds())
			drawLines(layer, face, lay, r.shadow.Color, r.shadow.OffsetX, r.shadow.OffsetY)
			var shadow image.Image = layer
			if r.shadow.Sigma > 0 {
				shadow = imaging.Blur(layer, r.shadow.Sigma)
			}
			draw.Draw(canvas, canvas.Bounds(), shadow, image.Point{}, draw.Over)
		}
		drawLines(canvas, face, lay, bg.TextColor, 0, 0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(r.quality)); err != nil {
		return Image{}, errors.WrapWithCode(err, errors.CodeRaster, op, "encode jpeg")
	}

	return Image{
		Bytes:    buf.Bytes(),
		MimeType: MimeJPEG,
		Ext:      ExtJPEG,
		Width:    width,
		Height:   height,
	}, nil
}

// paintBackground fills dst with a solid color for one stop, or a
// top-to-bottom gradient through evenly spaced stops.
func paintBackground(dst *image.NRGBA, stops []color.NRGBA) {
	b := dst.Bounds()
	h := b.Dy()
	for y := 0; y < h; y++ {
		c := stops[0]
		if len(stops) > 1 && h > 1 {
			c = gradientAt(stops, float64(y)/float64(h-1))
		}
		row := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = c.R, c.G, c.B, c.A
		}
	}
}

func gradientAt(stops []color.NRGBA, t float64) color.NRGBA {
	segments := float64(len(stops) - 1)
	pos := t * segments
	i := int(math.Floor(pos))
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	f := pos - float64(i)
	a, b := stops[i], stops[i+1]
	return color.NRGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: lerp(a.A, b.A, f),
	}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*f))
}

// drawLines centers each line horizontally and the block vertically.
func drawLines(dst draw.Image, face font.Face, lay layout.Result, c color.NRGBA, dx, dy int) {
	b := dst.Bounds()
	m := face.Metrics()
	ascent, descent := fromFixed(m.Ascent), fromFixed(m.Descent)

	startY := (float64(b.Dy())-lay.TotalHeightPx)/2 + lay.LineHeightPx/2
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}

	for i, line := range lay.Lines {
		w := fromFixed(d.MeasureString(line))
		x := (float64(b.Dx())-w)/2 + float64(dx)
		center := startY + float64(i)*lay.LineHeightPx
		baseline := center + (ascent-descent)/2 + float64(dy)
		d.Dot = fixed.Point26_6{X: toFixed(x), Y: toFixed(baseline)}
		d.DrawString(line)
	}
}

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }
