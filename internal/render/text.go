package render

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"

	"vectormap/internal/expr"
	"vectormap/internal/style"
)

// textStyle is a symbol layer's text properties resolved for one feature.
type textStyle struct {
	size      float64
	maxWidth  float64
	maxAngle  float64
	spacing   float64
	haloWidth float64
	color     expr.Color
	halo      expr.Color
}

func resolveTextStyle(l *style.Symbol, ctx expr.Context) textStyle {
	size := l.TextSize.Number(ctx)
	opacity := l.TextOpacity.Number(ctx)
	return textStyle{
		size:      size,
		maxWidth:  l.TextMaxWidth.Number(ctx),
		maxAngle:  l.TextMaxAngle.Number(ctx),
		spacing:   l.TextLetterSpacing.Number(ctx) * size,
		haloWidth: math.Max(l.TextHaloWidth.Number(ctx), 0),
		color:     withOpacity(l.TextColor.Color(ctx), opacity),
		halo:      withOpacity(l.TextHaloColor.Color(ctx), opacity),
	}
}

func (s textStyle) run(glyphs []Glyph) GlyphRun {
	return GlyphRun{
		Glyphs:    glyphs,
		Size:      s.size,
		Color:     s.color,
		HaloColor: s.halo,
		HaloWidth: s.haloWidth,
	}
}

// label is a laid out text candidate in viewport pixels.
type label struct {
	text   string
	run    GlyphRun
	bound  orb.Bound
	curved bool
}

// wrapText splits text greedily on spaces so that each line fits in
// maxWidth ems. A single word wider than the budget keeps its own line.
func wrapText(text string, m FontMetrics, size, maxWidth float64) []string {
	budget := size * maxWidth
	if m.Advance(text, size) <= budget {
		return []string{text}
	}

	words := strings.Split(text, " ")
	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if m.Advance(current+" "+word, size) > budget {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(lines, current)
}

// layoutHorizontal centers the wrapped lines on anchor, stacking them around
// its vertical center. The bound includes the halo.
func layoutHorizontal(text string, anchor orb.Point, st textStyle, m FontMetrics) label {
	lines := wrapText(text, m, st.size, st.maxWidth)
	lh := m.LineHeight(st.size)
	n := float64(len(lines))

	glyphs := make([]Glyph, len(lines))
	var width float64
	for i, line := range lines {
		w := m.Advance(line, st.size)
		width = math.Max(width, w)
		glyphs[i] = Glyph{
			Text: line,
			X:    anchor[0] - w/2,
			Y:    anchor[1] + (float64(i)-(n-1)/2)*lh,
		}
	}

	halfW := width/2 + st.haloWidth
	halfH := n*lh/2 + st.haloWidth
	return label{
		text: text,
		run:  st.run(glyphs),
		bound: orb.Bound{
			Min: orb.Point{anchor[0] - halfW, anchor[1] - halfH},
			Max: orb.Point{anchor[0] + halfW, anchor[1] + halfH},
		},
	}
}

// curvedAdvance is the length of path text needs: word advances plus letter
// spacing after every character of a word, plus the spaces between words.
func curvedAdvance(text string, st textStyle, m FontMetrics) float64 {
	words := strings.Split(text, " ")
	var total float64
	for _, w := range words {
		total += m.Advance(w, st.size) + st.spacing*float64(utf8.RuneCountInString(w))
	}
	return total + float64(len(words)-1)*m.Advance(" ", st.size)
}

func isFlipped(angle float64) bool {
	return angle > 90 && angle < 270
}

// layoutCurved walks text along line one character at a time. Text whose
// start direction points left is laid out in reverse and turned half a
// revolution so it reads upright. The whole label is dropped when it does
// not fit or when two neighbouring characters differ in direction by more
// than maxAngle.
func layoutCurved(text string, line polyline, st textStyle, m FontMetrics) (label, bool) {
	runes := []rune(text)
	if len(runes) == 0 || curvedAdvance(text, st, m) > line.Length() {
		return label{}, false
	}

	lh := m.LineHeight(st.size)
	start := line.AngleAt(0)
	flip := isFlipped(start)
	prev := start

	glyphs := make([]Glyph, 0, len(runes))
	var bound orb.Bound
	var length float64
	for k := range runes {
		i := k
		if flip {
			i = len(runes) - 1 - k
		}
		ch := string(runes[i])

		pos := line.PointAt(length)
		angle := line.AngleAt(length)
		if angleDelta(angle, prev) > st.maxAngle {
			return label{}, false
		}

		rotation := -angle
		if flip {
			rotation = -(angle + 180)
		}
		glyphs = append(glyphs, Glyph{Text: ch, X: pos[0], Y: pos[1], Angle: rotation * math.Pi / 180})

		adv := m.Advance(ch, st.size)
		cell := orb.Bound{
			Min: orb.Point{pos[0], pos[1] - lh/2},
			Max: orb.Point{pos[0] + adv, pos[1] + lh/2},
		}
		if k == 0 {
			bound = cell
		} else {
			bound = bound.Union(cell)
		}

		spacing := st.spacing
		if runes[i] == ' ' {
			spacing = 0
		}
		length += adv + spacing
		prev = angle
	}

	return label{text: text, run: st.run(glyphs), bound: bound, curved: true}, true
}
