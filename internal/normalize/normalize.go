// Package normalize cleans generated caption text before layout. Cleaning
// is an ordered list of named rules so each step can be tested and traced
// on its own.
package normalize

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Rule is one named transformation.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Step records the text after one rule ran.
type Step struct {
	Rule string
	Text string
}

type Normalizer struct {
	rules []Rule
}

// New builds a Normalizer running rules in the given order. With no rules
// it uses DefaultRules.
func New(rules ...Rule) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Normalizer{rules: rules}
}

// Apply runs every rule in order.
func (n *Normalizer) Apply(s string) string {
	for _, r := range n.rules {
		s = r.Apply(s)
	}
	return s
}

// Trace runs every rule and returns the intermediate text after each one.
func (n *Normalizer) Trace(s string) []Step {
	steps := make([]Step, 0, len(n.rules))
	for _, r := range n.rules {
		s = r.Apply(s)
		steps = append(steps, Step{Rule: r.Name, Text: s})
	}
	return steps
}

var std = New()

// Clean applies DefaultRules.
func Clean(s string) string { return std.Apply(s) }

// DefaultRules is the cleanup order used for generated captions. Markdown
// goes first so link targets and list markers never reach the later rules.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "markdown", Apply: StripMarkdown},
		{Name: "stray-markers", Apply: regexpRule(strayMarkers, "")},
		{Name: "call-to-action", Apply: StripCallToAction},
		{Name: "emoji", Apply: emojiReplacer.Replace},
		{Name: "smart-quotes", Apply: quoteReplacer.Replace},
		{Name: "whitespace", Apply: CollapseWhitespace},
	}
}

func regexpRule(re *regexp.Regexp, repl string) func(string) string {
	return func(s string) string { return re.ReplaceAllString(s, repl) }
}

var md = goldmark.New()

// StripMarkdown renders s to plain text: emphasis, headings, list markers
// and code ticks disappear, links keep their text. Blocks are separated by
// newlines.
func StripMarkdown(s string) string {
	src := []byte(s)
	doc := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	newline := func() {
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading, *ast.ListItem:
			newline()
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			newline()
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(src))
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}

var strayMarkers = regexp.MustCompile("\\*+|_{2,}|`+")

var callToAction = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btag\s+[^.!?]*[.!?]`),
	regexp.MustCompile(`(?i)\bcommentez\s+[^.!?]*[.!?]`),
	regexp.MustCompile(`(?i)\bpartagez\s+[^.!?]*[.!?]`),
	regexp.MustCompile(`(?i)\bqui\s+est\s+d['’]accord[^.!?]*[.!?]`),
}

// StripCallToAction drops engagement-bait sentences ("Tag a friend who...",
// "Commentez ...", "Partagez ...", "Qui est d'accord ?").
func StripCallToAction(s string) string {
	for _, re := range callToAction {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

var emojiReplacer = strings.NewReplacer(
	"👇", "",
	"🔥", "",
	"✨", "",
	"💰", "",
	"📱", "",
	"❤️", "",
	"❤", "",
	"💯", "",
	"😅", "",
	"🤔", "",
	"💙", "",
)

var quoteReplacer = strings.NewReplacer(
	"“", "",
	"”", "",
	"\"", "",
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\p{Zs}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// CollapseWhitespace squeezes runs of spaces, trims every line and keeps at
// most one blank line between paragraphs.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
