package caption

import (
	"image/color"
	"testing"
)

func TestResolveKnownLabelIgnoresPosition(t *testing.T) {
	cat := DefaultCatalog()
	for pos := 0; pos < 20; pos++ {
		got := cat.Resolve(Item{Position: pos, Background: LabelDark})
		if got != 3 {
			t.Fatalf("position %d: expected Dark to resolve to 3, got %d", pos, got)
		}
	}
}

func TestResolveFallsBackToPosition(t *testing.T) {
	cat := DefaultCatalog()
	tests := []struct {
		name string
		item Item
		want int
	}{
		{"missing label", Item{Position: 9}, 9 % len(cat)},
		{"unknown label", Item{Position: 4, Background: Label("Neon-Green")}, 4},
		{"wraps around", Item{Position: 14}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cat.Resolve(tt.item); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
		ok   bool
	}{
		{"Pink-Blue", LabelPinkBlue, true},
		{"pink blue", LabelPinkBlue, true},
		{"SOLID PURPLE", LabelSolidPurple, true},
		{"yellow_pink", LabelYellowPink, true},
		{"", LabelNone, false},
		{"Sunset", LabelNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLabel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLabel(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	cat := DefaultCatalog()
	if len(cat) != 7 {
		t.Fatalf("expected 7 presets, got %d", len(cat))
	}
	for i, spec := range cat {
		if err := spec.Validate(); err != nil {
			t.Errorf("preset %d invalid: %v", i, err)
		}
		if spec.Kind == KindGradient && len(spec.ColorStops) < 2 {
			t.Errorf("gradient preset %d needs two stops", i)
		}
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#e91e63")
	if err != nil {
		t.Fatal(err)
	}
	if c != (color.NRGBA{R: 0xe9, G: 0x1e, B: 0x63, A: 0xff}) {
		t.Errorf("unexpected color %v", c)
	}
	if short := MustHex("#fff"); short != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("unexpected short color %v", short)
	}
	if _, err := ParseHex("#12345"); err == nil {
		t.Error("expected error for malformed color")
	}
}

func TestNameHintIsScopedToRun(t *testing.T) {
	it := Item{ID: "1"}
	tests := []struct {
		runID string
		want  string
	}{
		{"", "caption_1"},
		{"0f8e2c4a-91b3-4d6e-8a7f-123456789abc", "caption_0f8e2c4a91b3_1"},
		{"short", "caption_short_1"},
	}
	for _, tt := range tests {
		if got := it.NameHint(tt.runID); got != tt.want {
			t.Errorf("NameHint(%q) = %q, want %q", tt.runID, got, tt.want)
		}
	}
}
