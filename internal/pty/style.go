package pty

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

type Attr uint16

const (
	AttrBold Attr = 1 << iota
	AttrFaint
	AttrItalic
	AttrUnderline
	AttrBlink
	AttrReverse
	AttrConceal
	AttrStrike
)

var attrCodes = []struct {
	attr Attr
	code string
}{
	{AttrBold, "1"},
	{AttrFaint, "2"},
	{AttrItalic, "3"},
	{AttrUnderline, "4"},
	{AttrBlink, "5"},
	{AttrReverse, "7"},
	{AttrConceal, "8"},
	{AttrStrike, "9"},
}

type colorKind uint8

const (
	colorDefault colorKind = iota
	colorIndexed
	colorRGB
)

// Color is a terminal colour: the default, one of the 256 indexed colours, or
// a 24-bit value.
type Color struct {
	kind    colorKind
	index   uint8
	r, g, b uint8
}

func IndexedColor(i uint8) Color { return Color{kind: colorIndexed, index: i} }

func RGBColor(r, g, b uint8) Color { return Color{kind: colorRGB, r: r, g: g, b: b} }

func (c Color) IsDefault() bool { return c.kind == colorDefault }

func (c Color) sgr(base, bright, extended int) string {
	switch c.kind {
	case colorIndexed:
		if c.index < 8 {
			return strconv.Itoa(base + int(c.index))
		}
		if c.index < 16 {
			return strconv.Itoa(bright + int(c.index) - 8)
		}
		return strconv.Itoa(extended) + ";5;" + strconv.Itoa(int(c.index))
	case colorRGB:
		return strconv.Itoa(extended) + ";2;" + strconv.Itoa(int(c.r)) + ";" + strconv.Itoa(int(c.g)) + ";" + strconv.Itoa(int(c.b))
	default:
		return ""
	}
}

// Style is the pen a cell was drawn with.
type Style struct {
	Fg    Color
	Bg    Color
	Attrs Attr
}

func (s Style) IsZero() bool { return s == Style{} }

// sgr renders the style as a single SGR sequence that starts from a reset.
func (s Style) sgr() string {
	parts := []string{"0"}
	for _, ac := range attrCodes {
		if s.Attrs&ac.attr != 0 {
			parts = append(parts, ac.code)
		}
	}
	if code := s.Fg.sgr(30, 90, 38); code != "" {
		parts = append(parts, code)
	}
	if code := s.Bg.sgr(40, 100, 48); code != "" {
		parts = append(parts, code)
	}
	return "\x1b[" + strings.Join(parts, ";") + "m"
}

// applySGR folds one SGR parameter list into the pen.
func applySGR(pen Style, params ansi.Params) Style {
	if len(params) == 0 {
		return Style{}
	}
	for i := 0; i < len(params); i++ {
		p := params[i].Param(0)
		switch {
		case p == 0:
			pen = Style{}
		case p == 1:
			pen.Attrs |= AttrBold
		case p == 2:
			pen.Attrs |= AttrFaint
		case p == 3:
			pen.Attrs |= AttrItalic
		case p == 4:
			pen.Attrs |= AttrUnderline
		case p == 5 || p == 6:
			pen.Attrs |= AttrBlink
		case p == 7:
			pen.Attrs |= AttrReverse
		case p == 8:
			pen.Attrs |= AttrConceal
		case p == 9:
			pen.Attrs |= AttrStrike
		case p == 21 || p == 22:
			pen.Attrs &^= AttrBold | AttrFaint
		case p == 23:
			pen.Attrs &^= AttrItalic
		case p == 24:
			pen.Attrs &^= AttrUnderline
		case p == 25:
			pen.Attrs &^= AttrBlink
		case p == 27:
			pen.Attrs &^= AttrReverse
		case p == 28:
			pen.Attrs &^= AttrConceal
		case p == 29:
			pen.Attrs &^= AttrStrike
		case p >= 30 && p <= 37:
			pen.Fg = IndexedColor(uint8(p - 30))
		case p == 38:
			c, n := extendedColor(params, i)
			pen.Fg = c
			i += n
		case p == 39:
			pen.Fg = Color{}
		case p >= 40 && p <= 47:
			pen.Bg = IndexedColor(uint8(p - 40))
		case p == 48:
			c, n := extendedColor(params, i)
			pen.Bg = c
			i += n
		case p == 49:
			pen.Bg = Color{}
		case p >= 90 && p <= 97:
			pen.Fg = IndexedColor(uint8(p - 90 + 8))
		case p >= 100 && p <= 107:
			pen.Bg = IndexedColor(uint8(p - 100 + 8))
		}
	}
	return pen
}

// extendedColor decodes the 5;n and 2;r;g;b forms that follow 38 or 48. It
// returns the colour and how many extra params it consumed.
func extendedColor(params ansi.Params, i int) (Color, int) {
	mode, _, ok := params.Param(i+1, -1)
	if !ok {
		return Color{}, 0
	}
	switch mode {
	case 5:
		idx, _, ok := params.Param(i+2, 0)
		if !ok {
			return Color{}, 1
		}
		return IndexedColor(clampByte(idx)), 2
	case 2:
		r, _, _ := params.Param(i+2, 0)
		g, _, _ := params.Param(i+3, 0)
		b, _, _ := params.Param(i+4, 0)
		return RGBColor(clampByte(r), clampByte(g), clampByte(b)), 4
	default:
		return Color{}, 1
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
