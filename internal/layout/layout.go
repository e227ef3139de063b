// Package layout wraps caption text into a bounded box, shrinking the font
// until the block fits or the minimum size is reached.
//
// The engine is a pure function of its inputs. Text measurement is injected
// so the algorithm can run without a font backend.
package layout

import (
	"math"
	"strings"

	"postcraft/internal/pkg/errors"
)

const (
	// DefaultLineSpacing is the line height as a multiple of the font size.
	DefaultLineSpacing = 1.15
	// DefaultStepPx is how much the font shrinks per attempt.
	DefaultStepPx = 3.0
)

// MeasureFunc returns the rendered width of text at the given font size.
type MeasureFunc func(text string, fontSizePx float64) float64

// Result is an immutable wrapped block. A re-render produces a new Result.
type Result struct {
	Lines         []string `json:"lines"`
	FontSizePx    float64  `json:"font_size_px"`
	LineHeightPx  float64  `json:"line_height_px"`
	TotalHeightPx float64  `json:"total_height_px"`
}

// Options bounds one layout run.
type Options struct {
	MaxWidthPx      float64
	MaxHeightPx     float64
	StartFontSizePx float64
	MinFontSizePx   float64
	// StepPx defaults to DefaultStepPx when zero.
	StepPx float64
	// LineSpacing defaults to DefaultLineSpacing when zero.
	LineSpacing float64
}

func (o Options) withDefaults() Options {
	if o.StepPx == 0 {
		o.StepPx = DefaultStepPx
	}
	if o.LineSpacing == 0 {
		o.LineSpacing = DefaultLineSpacing
	}
	return o
}

func (o Options) validate(measure MeasureFunc) error {
	switch {
	case measure == nil:
		return invalid("measure function is nil")
	case !finitePositive(o.MaxWidthPx) || !finitePositive(o.MaxHeightPx):
		return invalid("box must be positive, got %gx%g", o.MaxWidthPx, o.MaxHeightPx)
	case !finitePositive(o.MinFontSizePx) || !finitePositive(o.StartFontSizePx):
		return invalid("font sizes must be positive, got start=%g min=%g", o.StartFontSizePx, o.MinFontSizePx)
	case o.MinFontSizePx > o.StartFontSizePx:
		return invalid("min font size %g exceeds start %g", o.MinFontSizePx, o.StartFontSizePx)
	case !finitePositive(o.StepPx) || !finitePositive(o.LineSpacing):
		return invalid("step and line spacing must be positive, got %g and %g", o.StepPx, o.LineSpacing)
	}
	return nil
}

func invalid(format string, args ...any) error {
	e := errors.Newf(errors.CodeLayout, format, args...)
	e.Op = "layout.fit"
	return e
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Fit wraps text into the box described by opts. Overflow at the minimum
// size is returned as a normal result; only invalid options fail.
func Fit(text string, opts Options, measure MeasureFunc) (Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(measure); err != nil {
		return Result{}, err
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return Result{
			Lines:        []string{},
			FontSizePx:   opts.MinFontSizePx,
			LineHeightPx: opts.MinFontSizePx * opts.LineSpacing,
		}, nil
	}

	size := opts.StartFontSizePx
	for {
		lines := Wrap(words, opts.MaxWidthPx, size, measure)
		lineHeight := size * opts.LineSpacing
		total := float64(len(lines)) * lineHeight

		if total <= opts.MaxHeightPx || size <= opts.MinFontSizePx {
			return Result{
				Lines:         lines,
				FontSizePx:    size,
				LineHeightPx:  lineHeight,
				TotalHeightPx: total,
			}, nil
		}

		size = math.Max(size-opts.StepPx, opts.MinFontSizePx)
	}
}

// Wrap greedily packs words into lines no wider than maxWidth. A word that
// alone exceeds maxWidth still gets its own line.
func Wrap(words []string, maxWidth, fontSizePx float64, measure MeasureFunc) []string {
	lines := make([]string, 0, 4)
	current := ""
	for _, w := range words {
		if current == "" {
			current = w
			continue
		}
		candidate := current + " " + w
		if measure(candidate, fontSizePx) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = w
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// MonospaceMeasure approximates width as runeCount * fontSize * advance. It
// is deterministic and used by tests and dry runs.
func MonospaceMeasure(advance float64) MeasureFunc {
	return func(text string, fontSizePx float64) float64 {
		return float64(len([]rune(text))) * fontSizePx * advance
	}
}
