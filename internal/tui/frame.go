package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Rect is a region of the frame in cells.
type Rect struct {
	X, Y          int
	Width, Height int
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

type segment struct {
	x    int
	text string
}

// Frame collects what components draw during one render and composes it
// into the final view.
type Frame struct {
	width, height int
	rows          [][]segment
}

func NewFrame(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{width: width, height: height, rows: make([][]segment, height)}
}

func (f *Frame) Area() Rect {
	return Rect{Width: f.width, Height: f.height}
}

// Render places block inside area. Lines are truncated or padded to the
// area width and lines beyond its height are dropped.
func (f *Frame) Render(area Rect, block string) {
	if area.Empty() {
		return
	}
	lines := strings.Split(block, "\n")
	for i := 0; i < area.Height; i++ {
		y := area.Y + i
		if y < 0 || y >= f.height {
			continue
		}
		line := ""
		if i < len(lines) {
			line = lines[i]
		}
		f.rows[y] = append(f.rows[y], segment{x: area.X, text: fillWidth(line, area.Width)})
	}
}

func (f *Frame) String() string {
	if f.width == 0 || f.height == 0 {
		return ""
	}
	out := make([]string, f.height)
	for y, segs := range f.rows {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].x < segs[j].x })
		var b strings.Builder
		col := 0
		for _, seg := range segs {
			if seg.x > col {
				b.WriteString(strings.Repeat(" ", seg.x-col))
				col = seg.x
			}
			if seg.x < col {
				continue
			}
			b.WriteString(seg.text)
			col += ansi.StringWidth(seg.text)
		}
		out[y] = fillWidth(b.String(), f.width)
	}
	return strings.Join(out, "\n")
}

// Layout splits the screen into the task list on the left third, the
// terminal pane on the remaining two thirds, and a one-line status bar.
type Layout struct {
	List   Rect
	Pane   Rect
	Status Rect
}

func ComputeLayout(area Rect) Layout {
	statusHeight := 1
	if area.Height < 2 {
		statusHeight = 0
	}
	mainHeight := area.Height - statusHeight
	paneWidth := (area.Width / 3) * 2
	listWidth := area.Width - paneWidth
	return Layout{
		List:   Rect{X: area.X, Y: area.Y, Width: listWidth, Height: mainHeight},
		Pane:   Rect{X: area.X + listWidth, Y: area.Y, Width: paneWidth, Height: mainHeight},
		Status: Rect{X: area.X, Y: area.Y + mainHeight, Width: area.Width, Height: statusHeight},
	}
}

// paneHeaderLines is the header row the terminal pane draws above the
// process screen.
const paneHeaderLines = 1

// CalculatePtyDimensions returns the rows and columns a process screen gets
// inside a terminal pane occupying area.
func CalculatePtyDimensions(area Rect) (rows, cols uint16) {
	frameWidth, frameHeight := outputStyle.GetFrameSize()
	w := area.Width - frameWidth
	h := area.Height - frameHeight - paneHeaderLines
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	return uint16(h), uint16(w)
}

func fitWidth(line string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(line, width, "")
}

func fillWidth(line string, width int) string {
	if width <= 0 {
		return ""
	}
	truncated := ansi.Truncate(line, width, "")
	pad := width - ansi.StringWidth(truncated)
	if pad > 0 {
		truncated = truncated + strings.Repeat(" ", pad)
	}
	return truncated
}

func borderSize(style lipgloss.Style) (int, int) {
	frameWidth, frameHeight := style.GetFrameSize()
	padTop, padRight, padBottom, padLeft := style.GetPadding()
	borderWidth := frameWidth - padLeft - padRight
	borderHeight := frameHeight - padTop - padBottom
	if borderWidth < 0 {
		borderWidth = 0
	}
	if borderHeight < 0 {
		borderHeight = 0
	}
	return borderWidth, borderHeight
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
