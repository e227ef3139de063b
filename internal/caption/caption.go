// Package caption holds the caption item and background catalog shared by
// every stage of the pipeline.
package caption

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Item is one unit of work. It is immutable once handed to the orchestrator.
type Item struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Background Label  `json:"background,omitempty"`
	Position   int    `json:"position"`
}

// NameHint is the storage name used when the item is published. The run
// tag keeps two runs that publish the same item id within one second from
// sharing an object key.
func (it Item) NameHint(runID string) string {
	tag := RunTag(runID)
	if tag == "" {
		return "caption_" + it.ID
	}
	return "caption_" + tag + "_" + it.ID
}

// RunTag is the first 12 hex digits of a run id, or "" for an empty id.
func RunTag(runID string) string {
	tag := strings.ReplaceAll(runID, "-", "")
	if len(tag) > runTagLen {
		tag = tag[:runTagLen]
	}
	return tag
}

const runTagLen = 12

// Kind is the fill kind of a background.
type Kind string

const (
	KindSolid    Kind = "solid"
	KindGradient Kind = "gradient"
)

// BackgroundSpec is a solid or gradient fill plus the text color drawn on it.
type BackgroundSpec struct {
	Kind       Kind
	ColorStops []color.NRGBA
	TextColor  color.NRGBA
}

// Validate rejects specs the rasterizer cannot paint.
func (b BackgroundSpec) Validate() error {
	if len(b.ColorStops) == 0 {
		return fmt.Errorf("background has no color stops")
	}
	if b.Kind != KindSolid && b.Kind != KindGradient {
		return fmt.Errorf("unknown background kind %q", b.Kind)
	}
	return nil
}

// Label names one preset of the catalog.
type Label string

const (
	LabelNone        Label = ""
	LabelCyanPurple  Label = "Cyan-Purple"
	LabelSolidPurple Label = "Solid Purple"
	LabelPinkRed     Label = "Pink-Red"
	LabelDark        Label = "Dark"
	LabelPinkBlue    Label = "Pink-Blue"
	LabelPurplePink  Label = "Purple-Pink"
	LabelYellowPink  Label = "Yellow-Pink"
)

// labelIndex is the fixed label to catalog index table.
var labelIndex = map[Label]int{
	LabelCyanPurple:  0,
	LabelSolidPurple: 1,
	LabelPinkRed:     2,
	LabelDark:        3,
	LabelPinkBlue:    4,
	LabelPurplePink:  5,
	LabelYellowPink:  6,
}

// ParseLabel normalizes free-form input ("pink blue", "PINK-BLUE") to a known
// label. Unknown input yields LabelNone and false.
func ParseLabel(s string) (Label, bool) {
	key := foldLabel(s)
	if key == "" {
		return LabelNone, false
	}
	for l := range labelIndex {
		if foldLabel(string(l)) == key {
			return l, true
		}
	}
	return LabelNone, false
}

func foldLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Index returns the fixed catalog index of a known label.
func (l Label) Index() (int, bool) {
	i, ok := labelIndex[l]
	return i, ok
}

// Catalog is an ordered, closed list of background presets.
type Catalog []BackgroundSpec

// DefaultCatalog returns the seven presets in label-table order.
func DefaultCatalog() Catalog {
	white := MustHex("#ffffff")
	return Catalog{
		{Kind: KindGradient, ColorStops: hexes("#00bcd4", "#9c27b0"), TextColor: white},
		{Kind: KindSolid, ColorStops: hexes("#8e24aa"), TextColor: white},
		{Kind: KindSolid, ColorStops: hexes("#e91e63"), TextColor: white},
		{Kind: KindSolid, ColorStops: hexes("#1c1e21"), TextColor: white},
		{Kind: KindGradient, ColorStops: hexes("#e91e63", "#3f51b5"), TextColor: white},
		{Kind: KindGradient, ColorStops: hexes("#673ab7", "#e91e63"), TextColor: white},
		{Kind: KindGradient, ColorStops: hexes("#ffc107", "#e91e63"), TextColor: white},
	}
}

// Resolve picks the background index for an item: the label's fixed index
// when the label is known, otherwise position mod catalog size.
func (c Catalog) Resolve(it Item) int {
	if len(c) == 0 {
		return 0
	}
	if i, ok := it.Background.Index(); ok && i < len(c) {
		return i
	}
	i := it.Position % len(c)
	if i < 0 {
		i += len(c)
	}
	return i
}

// ParseHex parses #rgb or #rrggbb into an opaque color.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// MustHex is ParseHex for compile-time constants.
func MustHex(s string) color.NRGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func hexes(ss ...string) []color.NRGBA {
	out := make([]color.NRGBA, len(ss))
	for i, s := range ss {
		out[i] = MustHex(s)
	}
	return out
}
