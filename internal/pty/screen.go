package pty

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

const (
	DefaultScrollback = 10000
	tabWidth          = 8
)

// Cell is one position of the grid. A wide rune occupies its cell with
// Width 2 and leaves a Width 0 continuation cell to its right.
type Cell struct {
	Rune  rune
	Width int8
	Style Style
}

func (c Cell) blank() bool {
	return (c.Rune == 0 || c.Rune == ' ') && c.Width != 0 && c.Style.IsZero()
}

type cursor struct {
	row, col int
	pen      Style
}

type altState struct {
	grid   [][]Cell
	cursor cursor
}

// Screen is a virtual terminal: a grid of styled cells with a cursor and a
// scrollback buffer, fed by the raw byte stream of a process.
//
// Write has a single caller (the instance's reader goroutine). Every other
// method only reads and may be called from any goroutine.
type Screen struct {
	mu sync.RWMutex

	rows, cols    int
	grid          [][]Cell
	scrollback    [][]Cell
	maxScrollback int

	cur         cursor
	saved       cursor
	wrapPending bool
	top, bottom int
	autowrap    bool
	alt         *altState

	parser  *ansi.Parser
	replies [][]byte
	reply   func([]byte)
}

func NewScreen(rows, cols, scrollback int) *Screen {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	s := &Screen{
		rows:          rows,
		cols:          cols,
		maxScrollback: scrollback,
		autowrap:      true,
		bottom:        rows - 1,
	}
	s.grid = s.blankGrid(rows)
	s.parser = ansi.NewParser()
	s.parser.SetHandler(ansi.Handler{
		Print:     s.print,
		Execute:   s.execute,
		HandleCsi: s.handleCsi,
		HandleEsc: s.handleEsc,
	})
	return s
}

// Write feeds raw process output into the emulator. Terminal queries that
// need an answer (cursor position, status) are answered through the reply
// function once the lock is released.
func (s *Screen) Write(p []byte) (int, error) {
	s.mu.Lock()
	for _, b := range p {
		s.parser.Advance(b)
	}
	replies := s.replies
	s.replies = nil
	reply := s.reply
	s.mu.Unlock()

	if reply != nil {
		for _, r := range replies {
			reply(r)
		}
	}
	return len(p), nil
}

func (s *Screen) setReply(fn func([]byte)) {
	s.mu.Lock()
	s.reply = fn
	s.mu.Unlock()
}

func (s *Screen) Size() (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

func (s *Screen) Cursor() (row, col int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.row, s.cur.col
}

// Cell returns the visible cell at row, col (zero-based).
func (s *Screen) Cell(row, col int) Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		return Cell{}
	}
	return s.grid[row][col]
}

func (s *Screen) ScrollbackLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scrollback)
}

// AltScreen reports whether the alternate screen buffer is active.
func (s *Screen) AltScreen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alt != nil
}

// Resize changes the grid dimensions without reflowing. Lines pushed off the
// top by a shrinking height go to scrollback, so history is never lost.
func (s *Screen) Resize(rows, cols int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows == s.rows && cols == s.cols {
		return
	}

	s.cols = cols
	for i := range s.grid {
		s.grid[i] = s.fitLine(s.grid[i])
	}
	for len(s.grid) > rows {
		last := len(s.grid) - 1
		if s.cur.row < last && lineBlank(s.grid[last]) {
			s.grid = s.grid[:last]
			continue
		}
		if s.alt == nil {
			s.pushScrollback(s.grid[0])
		}
		s.grid = s.grid[1:]
		s.cur.row--
		s.saved.row--
	}
	for len(s.grid) < rows {
		s.grid = append(s.grid, s.blankLine())
	}

	if s.alt != nil {
		main := s.alt.grid
		for i := range main {
			main[i] = s.fitLine(main[i])
		}
		for len(main) > rows {
			s.pushScrollback(main[0])
			main = main[1:]
			s.alt.cursor.row--
		}
		for len(main) < rows {
			main = append(main, s.blankLine())
		}
		s.alt.grid = main
		s.alt.cursor.row = clamp(s.alt.cursor.row, 0, rows-1)
		s.alt.cursor.col = clamp(s.alt.cursor.col, 0, cols-1)
	}

	s.rows = rows
	s.top, s.bottom = 0, rows-1
	s.cur.row = clamp(s.cur.row, 0, rows-1)
	s.cur.col = clamp(s.cur.col, 0, cols-1)
	s.saved.row = clamp(s.saved.row, 0, rows-1)
	s.saved.col = clamp(s.saved.col, 0, cols-1)
	s.wrapPending = false
}

// Contents returns the plain text of scrollback and the visible grid with
// trailing blank lines removed.
func (s *Screen) Contents() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.allLines()
	out := make([]string, len(lines))
	for i, line := range lines {
		var b strings.Builder
		for _, c := range line {
			if c.Width == 0 {
				continue
			}
			if c.Rune == 0 {
				b.WriteByte(' ')
				continue
			}
			b.WriteRune(c.Rune)
		}
		out[i] = strings.TrimRight(b.String(), " ")
	}
	return strings.Join(out, "\n")
}

// FormattedLines renders scrollback plus the visible grid, one string per
// line, with SGR sequences reapplied wherever the style changes.
func (s *Screen) FormattedLines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.allLines()
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = renderLine(line)
	}
	return out
}

// AllContentsFormatted is FormattedLines joined for replay outside a live
// terminal.
func (s *Screen) AllContentsFormatted() []byte {
	return []byte(strings.Join(s.FormattedLines(), "\n"))
}

func (s *Screen) allLines() [][]Cell {
	lines := make([][]Cell, 0, len(s.scrollback)+len(s.grid))
	lines = append(lines, s.scrollback...)
	lines = append(lines, s.grid...)
	for len(lines) > 0 && lineBlank(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func renderLine(line []Cell) string {
	end := len(line)
	for end > 0 && line[end-1].blank() {
		end--
	}
	var b strings.Builder
	var pen Style
	for _, c := range line[:end] {
		if c.Width == 0 {
			continue
		}
		if c.Style != pen {
			b.WriteString(c.Style.sgr())
			pen = c.Style
		}
		if c.Rune == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteRune(c.Rune)
		}
	}
	if !pen.IsZero() {
		b.WriteString("\x1b[0m")
	}
	return b.String()
}

func lineBlank(line []Cell) bool {
	for _, c := range line {
		if !c.blank() && c.Width != 0 {
			return false
		}
	}
	return true
}

// Everything below runs with s.mu held for writing.

func (s *Screen) blankCell() Cell {
	return Cell{Rune: ' ', Width: 1, Style: Style{Bg: s.cur.pen.Bg}}
}

func (s *Screen) blankLine() []Cell {
	line := make([]Cell, s.cols)
	blank := s.blankCell()
	for i := range line {
		line[i] = blank
	}
	return line
}

func (s *Screen) blankGrid(rows int) [][]Cell {
	grid := make([][]Cell, rows)
	for i := range grid {
		grid[i] = s.blankLine()
	}
	return grid
}

func (s *Screen) fitLine(line []Cell) []Cell {
	if len(line) == s.cols {
		return line
	}
	if len(line) > s.cols {
		line = line[:s.cols]
		if last := len(line) - 1; last >= 0 && line[last].Width == 2 {
			line[last] = Cell{Rune: ' ', Width: 1}
		}
		return line
	}
	for len(line) < s.cols {
		line = append(line, Cell{Rune: ' ', Width: 1})
	}
	return line
}

func (s *Screen) pushScrollback(line []Cell) {
	s.scrollback = append(s.scrollback, line)
	if over := len(s.scrollback) - s.maxScrollback; over > 0 {
		s.scrollback = s.scrollback[over:]
	}
}

func (s *Screen) print(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		return
	}
	if s.wrapPending {
		s.wrapPending = false
		if s.autowrap {
			s.cur.col = 0
			s.lineFeed()
		}
	}
	if w == 2 && s.cur.col == s.cols-1 {
		if s.cols < 2 {
			return
		}
		s.grid[s.cur.row][s.cur.col] = s.blankCell()
		if !s.autowrap {
			return
		}
		s.cur.col = 0
		s.lineFeed()
	}

	row := s.grid[s.cur.row]
	if s.cur.col > 0 && row[s.cur.col].Width == 0 {
		row[s.cur.col-1] = s.blankCell()
	}
	if w == 1 && row[s.cur.col].Width == 2 && s.cur.col+1 < s.cols {
		row[s.cur.col+1] = s.blankCell()
	}
	if w == 2 && row[s.cur.col+1].Width == 2 && s.cur.col+2 < s.cols {
		row[s.cur.col+2] = s.blankCell()
	}
	row[s.cur.col] = Cell{Rune: r, Width: int8(w), Style: s.cur.pen}
	if w == 2 {
		row[s.cur.col+1] = Cell{Width: 0, Style: s.cur.pen}
	}

	s.cur.col += w
	if s.cur.col >= s.cols {
		s.cur.col = s.cols - 1
		s.wrapPending = true
	}
}

func (s *Screen) execute(b byte) {
	switch b {
	case '\n', '\v', '\f':
		s.lineFeed()
	case '\r':
		s.cur.col = 0
		s.wrapPending = false
	case '\b':
		if s.cur.col > 0 {
			s.cur.col--
		}
		s.wrapPending = false
	case '\t':
		next := (s.cur.col/tabWidth + 1) * tabWidth
		s.cur.col = clamp(next, 0, s.cols-1)
	}
}

func (s *Screen) lineFeed() {
	s.wrapPending = false
	if s.cur.row == s.bottom {
		s.scrollUp(1)
		return
	}
	if s.cur.row < s.rows-1 {
		s.cur.row++
	}
}

func (s *Screen) reverseIndex() {
	s.wrapPending = false
	if s.cur.row == s.top {
		s.scrollDown(1)
		return
	}
	if s.cur.row > 0 {
		s.cur.row--
	}
}

// scrollUp moves the scroll region up by n lines. Lines leaving the top of a
// full-height region on the main screen are kept in scrollback.
func (s *Screen) scrollUp(n int) {
	height := s.bottom - s.top + 1
	n = clamp(n, 0, height)
	for i := 0; i < n; i++ {
		gone := s.grid[s.top]
		if s.top == 0 && s.alt == nil {
			s.pushScrollback(gone)
		}
		copy(s.grid[s.top:s.bottom], s.grid[s.top+1:s.bottom+1])
		s.grid[s.bottom] = s.blankLine()
	}
}

func (s *Screen) scrollDown(n int) {
	height := s.bottom - s.top + 1
	n = clamp(n, 0, height)
	for i := 0; i < n; i++ {
		copy(s.grid[s.top+1:s.bottom+1], s.grid[s.top:s.bottom])
		s.grid[s.top] = s.blankLine()
	}
}

func (s *Screen) handleEsc(cmd ansi.Cmd) {
	if cmd.Intermediate() != 0 {
		return
	}
	switch cmd.Final() {
	case '7':
		s.saved = s.cur
	case '8':
		s.restoreCursor()
	case 'D':
		s.lineFeed()
	case 'E':
		s.cur.col = 0
		s.lineFeed()
	case 'M':
		s.reverseIndex()
	case 'c':
		s.reset()
	}
}

func (s *Screen) handleCsi(cmd ansi.Cmd, params ansi.Params) {
	if cmd.Intermediate() != 0 {
		return
	}
	if cmd.Prefix() == '?' {
		s.handlePrivateMode(cmd.Final(), params)
		return
	}
	if cmd.Prefix() != 0 {
		return
	}

	n := func(i int) int {
		v, _, _ := params.Param(i, 1)
		if v < 1 {
			v = 1
		}
		return v
	}

	switch cmd.Final() {
	case 'A':
		s.moveTo(s.cur.row-n(0), s.cur.col)
	case 'B', 'e':
		s.moveTo(s.cur.row+n(0), s.cur.col)
	case 'C', 'a':
		s.moveTo(s.cur.row, s.cur.col+n(0))
	case 'D':
		s.moveTo(s.cur.row, s.cur.col-n(0))
	case 'E':
		s.moveTo(s.cur.row+n(0), 0)
	case 'F':
		s.moveTo(s.cur.row-n(0), 0)
	case 'G', '`':
		s.moveTo(s.cur.row, n(0)-1)
	case 'd':
		s.moveTo(n(0)-1, s.cur.col)
	case 'H', 'f':
		s.moveTo(n(0)-1, n(1)-1)
	case 'J':
		mode, _, _ := params.Param(0, 0)
		s.eraseDisplay(mode)
	case 'K':
		mode, _, _ := params.Param(0, 0)
		s.eraseLine(mode)
	case 'L':
		s.insertLines(n(0))
	case 'M':
		s.deleteLines(n(0))
	case '@':
		s.insertCells(n(0))
	case 'P':
		s.deleteCells(n(0))
	case 'X':
		s.eraseCells(n(0))
	case 'S':
		s.scrollUp(n(0))
	case 'T':
		s.scrollDown(n(0))
	case 'm':
		s.cur.pen = applySGR(s.cur.pen, params)
	case 'r':
		top, _, _ := params.Param(0, 1)
		bottom, _, _ := params.Param(1, s.rows)
		s.setScrollRegion(top-1, bottom-1)
	case 's':
		if len(params) == 0 {
			s.saved = s.cur
		}
	case 'u':
		s.restoreCursor()
	case 'n':
		mode, _, _ := params.Param(0, 0)
		switch mode {
		case 5:
			s.replies = append(s.replies, []byte("\x1b[0n"))
		case 6:
			s.replies = append(s.replies, []byte(fmt.Sprintf("\x1b[%d;%dR", s.cur.row+1, s.cur.col+1)))
		}
	}
}

func (s *Screen) handlePrivateMode(final byte, params ansi.Params) {
	if final != 'h' && final != 'l' {
		return
	}
	set := final == 'h'
	for i := range params {
		switch params[i].Param(0) {
		case 7:
			s.autowrap = set
		case 47, 1047, 1049:
			if set {
				s.enterAltScreen()
			} else {
				s.exitAltScreen()
			}
		}
	}
}

func (s *Screen) moveTo(row, col int) {
	s.cur.row = clamp(row, 0, s.rows-1)
	s.cur.col = clamp(col, 0, s.cols-1)
	s.wrapPending = false
}

func (s *Screen) restoreCursor() {
	s.cur = s.saved
	s.cur.row = clamp(s.cur.row, 0, s.rows-1)
	s.cur.col = clamp(s.cur.col, 0, s.cols-1)
	s.wrapPending = false
}

func (s *Screen) setScrollRegion(top, bottom int) {
	top = clamp(top, 0, s.rows-1)
	bottom = clamp(bottom, 0, s.rows-1)
	if top >= bottom {
		top, bottom = 0, s.rows-1
	}
	s.top, s.bottom = top, bottom
	s.moveTo(0, 0)
}

func (s *Screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(0)
		for r := s.cur.row + 1; r < s.rows; r++ {
			s.grid[r] = s.blankLine()
		}
	case 1:
		s.eraseLine(1)
		for r := 0; r < s.cur.row; r++ {
			s.grid[r] = s.blankLine()
		}
	case 2:
		for r := range s.grid {
			s.grid[r] = s.blankLine()
		}
	}
}

func (s *Screen) eraseLine(mode int) {
	row := s.grid[s.cur.row]
	from, to := 0, s.cols
	switch mode {
	case 0:
		from = s.cur.col
	case 1:
		to = s.cur.col + 1
	case 2:
	default:
		return
	}
	blank := s.blankCell()
	for c := from; c < to && c < s.cols; c++ {
		row[c] = blank
	}
	s.wrapPending = false
}

func (s *Screen) insertLines(n int) {
	if s.cur.row < s.top || s.cur.row > s.bottom {
		return
	}
	n = clamp(n, 0, s.bottom-s.cur.row+1)
	for i := 0; i < n; i++ {
		copy(s.grid[s.cur.row+1:s.bottom+1], s.grid[s.cur.row:s.bottom])
		s.grid[s.cur.row] = s.blankLine()
	}
	s.cur.col = 0
}

func (s *Screen) deleteLines(n int) {
	if s.cur.row < s.top || s.cur.row > s.bottom {
		return
	}
	n = clamp(n, 0, s.bottom-s.cur.row+1)
	for i := 0; i < n; i++ {
		copy(s.grid[s.cur.row:s.bottom], s.grid[s.cur.row+1:s.bottom+1])
		s.grid[s.bottom] = s.blankLine()
	}
	s.cur.col = 0
}

func (s *Screen) insertCells(n int) {
	row := s.grid[s.cur.row]
	n = clamp(n, 0, s.cols-s.cur.col)
	copy(row[s.cur.col+n:], row[s.cur.col:s.cols-n])
	blank := s.blankCell()
	for c := s.cur.col; c < s.cur.col+n; c++ {
		row[c] = blank
	}
}

func (s *Screen) deleteCells(n int) {
	row := s.grid[s.cur.row]
	n = clamp(n, 0, s.cols-s.cur.col)
	copy(row[s.cur.col:], row[s.cur.col+n:])
	blank := s.blankCell()
	for c := s.cols - n; c < s.cols; c++ {
		row[c] = blank
	}
}

func (s *Screen) eraseCells(n int) {
	row := s.grid[s.cur.row]
	blank := s.blankCell()
	for c := s.cur.col; c < s.cur.col+n && c < s.cols; c++ {
		row[c] = blank
	}
}

func (s *Screen) enterAltScreen() {
	if s.alt != nil {
		return
	}
	s.alt = &altState{grid: s.grid, cursor: s.cur}
	s.grid = s.blankGrid(s.rows)
	s.top, s.bottom = 0, s.rows-1
}

func (s *Screen) exitAltScreen() {
	if s.alt == nil {
		return
	}
	s.grid = s.alt.grid
	s.cur = s.alt.cursor
	s.alt = nil
	s.top, s.bottom = 0, s.rows-1
	s.wrapPending = false
}

func (s *Screen) reset() {
	s.alt = nil
	s.cur = cursor{}
	s.saved = cursor{}
	s.grid = s.blankGrid(s.rows)
	s.top, s.bottom = 0, s.rows-1
	s.autowrap = true
	s.wrapPending = false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
