package style

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/gg"

	"vectormap/internal/expr"
)

var ErrInvalidColor = errors.New("style: invalid color")

var namedColors = map[string]gg.RGBA{
	"black":       gg.Black,
	"white":       gg.White,
	"red":         gg.Red,
	"green":       gg.Green,
	"blue":        gg.Blue,
	"yellow":      gg.Yellow,
	"cyan":        gg.Cyan,
	"magenta":     gg.Magenta,
	"transparent": gg.Transparent,
}

// ParseColor reads the CSS color forms style sheets use: #rgb, #rgba,
// #rrggbb, #rrggbbaa, rgb(), rgba(), hsl(), hsla() and a few names.
func ParseColor(s string) (expr.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if c, ok := namedColors[s]; ok {
		return fromRGBA(c), nil
	}

	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		switch len(hex) {
		case 3, 4, 6, 8:
		default:
			return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		return fromRGBA(gg.Hex(hex)), nil
	}

	fn, args, ok := splitFunc(s)
	if !ok {
		return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	switch fn {
	case "rgb", "rgba":
		if len(args) != 3 && len(args) != 4 {
			break
		}
		var ch [3]float64
		for i := range ch {
			v, err := channel(args[i])
			if err != nil {
				return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
			}
			ch[i] = v
		}
		a, err := alpha(args, 3)
		if err != nil {
			return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		return expr.Color{R: ch[0], G: ch[1], B: ch[2], A: a}, nil

	case "hsl", "hsla":
		if len(args) != 3 && len(args) != 4 {
			break
		}
		h, err1 := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
		sat, err2 := percent(args[1])
		light, err3 := percent(args[2])
		a, err4 := alpha(args, 3)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		c := fromRGBA(gg.HSL(h, sat, light))
		c.A = a
		return c, nil
	}
	return expr.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// looksLikeColor is the cheap test used to pick string literals inside color
// expressions for conversion.
func looksLikeColor(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := namedColors[s]; ok {
		return true
	}
	return strings.HasPrefix(s, "#") || strings.HasPrefix(s, "rgb") || strings.HasPrefix(s, "hsl")
}

func fromRGBA(c gg.RGBA) expr.Color {
	return expr.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// ToRGBA converts an evaluated color for drawing.
func ToRGBA(c expr.Color) gg.RGBA {
	return gg.RGBA2(c.R, c.G, c.B, c.A)
}

func splitFunc(s string) (string, []string, bool) {
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	fn := strings.TrimSpace(s[:open])
	parts := strings.Split(s[open+1:len(s)-1], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return fn, parts, true
}

func channel(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		return percent(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v / 255), nil
}

func percent(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v / 100), nil
}

func alpha(args []string, i int) (float64, error) {
	if len(args) <= i {
		return 1, nil
	}
	if strings.HasSuffix(args[i], "%") {
		return percent(args[i])
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v), nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
