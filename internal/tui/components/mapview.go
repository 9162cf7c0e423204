package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/tui/styles"
)

// MapView renders listings as a Braille scatter plot. It reports its visible
// corners, so it can drive "search this area".
type MapView struct {
	width    int
	height   int
	points   []orb.Point
	border   orb.MultiPolygon // service area outline
	selected int              // index into points, -1 if none

	// Visible bounds
	minLat, maxLat float64
	minLng, maxLng float64
	// Base bounds, before zoom and pan
	base      orb.Bound
	autoFit   bool
	zoomLevel float64 // 1.0 = base bounds, >1 = zoomed in
	panLat    float64 // pan offset in degrees
	panLng    float64
}

func NewMapView(width, height int) MapView {
	return MapView{
		width:     width,
		height:    height,
		selected:  -1,
		autoFit:   true,
		zoomLevel: 1.0,
	}
}

func (m *MapView) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *MapView) SetBorder(mp orb.MultiPolygon) {
	m.border = mp
	if m.autoFit && len(m.points) == 0 && len(mp) > 0 {
		m.fit(mp.Bound())
	}
}

// SetPoints replaces the plotted listings. With auto-fit on, the view is
// refit around them.
func (m *MapView) SetPoints(points []orb.Point) {
	m.points = points
	m.selected = -1
	if m.autoFit && len(points) > 0 {
		m.fit(orb.MultiPoint(points).Bound())
	}
}

func (m *MapView) SetSelected(idx int) {
	m.selected = idx
}

// Focus shows b and stops auto-fitting to points.
func (m *MapView) Focus(b orb.Bound) {
	m.autoFit = false
	m.zoomLevel = 1.0
	m.panLat, m.panLng = 0, 0
	m.base = b
	m.applyZoom()
}

// AutoFit returns to fitting the view around the plotted points.
func (m *MapView) AutoFit() {
	m.autoFit = true
	m.zoomLevel = 1.0
	m.panLat, m.panLng = 0, 0
	if len(m.points) > 0 {
		m.fit(orb.MultiPoint(m.points).Bound())
	} else if len(m.border) > 0 {
		m.fit(m.border.Bound())
	}
}

func (m *MapView) ZoomIn() {
	m.autoFit = false
	m.zoomLevel = math.Min(m.zoomLevel*2, 64)
	m.applyZoom()
}

func (m *MapView) ZoomOut() {
	m.autoFit = false
	m.zoomLevel = math.Max(m.zoomLevel/2, 0.25)
	m.applyZoom()
}

// Pan moves the view by a tenth of its extent per step.
func (m *MapView) Pan(dLat, dLng float64) {
	m.autoFit = false
	m.panLat += dLat * (m.base.Max.Lat() - m.base.Min.Lat()) * 0.1 / m.zoomLevel
	m.panLng += dLng * (m.base.Max.Lon() - m.base.Min.Lon()) * 0.1 / m.zoomLevel
	m.applyZoom()
}

// Viewport returns the north-east and south-west corners on screen.
func (m MapView) Viewport() (ne, sw orb.Point) {
	return orb.Point{m.maxLng, m.maxLat}, orb.Point{m.minLng, m.minLat}
}

// Empty reports whether the view has no extent yet.
func (m MapView) Empty() bool {
	return m.maxLat == m.minLat || m.maxLng == m.minLng
}

func (m *MapView) applyZoom() {
	center := m.base.Center()
	halfLat := (m.base.Max.Lat() - m.base.Min.Lat()) / 2 / m.zoomLevel
	halfLng := (m.base.Max.Lon() - m.base.Min.Lon()) / 2 / m.zoomLevel
	m.minLat = center.Lat() + m.panLat - halfLat
	m.maxLat = center.Lat() + m.panLat + halfLat
	m.minLng = center.Lon() + m.panLng - halfLng
	m.maxLng = center.Lon() + m.panLng + halfLng
}

// fit sets the base bounds to b plus a 5% margin.
func (m *MapView) fit(b orb.Bound) {
	latPad := (b.Max.Lat() - b.Min.Lat()) * 0.05
	lngPad := (b.Max.Lon() - b.Min.Lon()) * 0.05
	if latPad == 0 {
		latPad = 0.01
	}
	if lngPad == 0 {
		lngPad = 0.01
	}
	m.base = orb.Bound{
		Min: orb.Point{b.Min.Lon() - lngPad, b.Min.Lat() - latPad},
		Max: orb.Point{b.Max.Lon() + lngPad, b.Max.Lat() + latPad},
	}
	m.applyZoom()
}

// Braille character encoding:
// Each braille char is a 2x4 dot grid.
// Dot positions:  0 3
//
//	1 4
//	2 5
//	6 7
//
// Unicode: 0x2800 + sum of raised dot bits
var brailleDots = [8]rune{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

var dotPositions = [8][2]int{
	{0, 0}, {1, 0}, {2, 0}, {0, 1},
	{1, 1}, {2, 1}, {3, 0}, {3, 1},
}

func (m MapView) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	cols := m.width
	rows := m.height
	dotW := cols * 2
	dotH := rows * 4

	latRange := m.maxLat - m.minLat
	lngRange := m.maxLng - m.minLng
	if latRange == 0 || lngRange == 0 {
		return strings.Repeat(strings.Repeat(" ", cols)+"\n", rows-1) + strings.Repeat(" ", cols)
	}

	// 1° of longitude shrinks with latitude; braille dots are roughly square.
	cosLat := math.Cos((m.minLat + m.maxLat) / 2 * math.Pi / 180)
	geoAspect := lngRange * cosLat / latRange
	dotAspect := float64(dotW) / float64(dotH)

	effectiveW, effectiveH := dotW, dotH
	offsetX, offsetY := 0, 0
	if geoAspect < dotAspect {
		effectiveW = max(int(float64(dotH)*geoAspect), 4)
		offsetX = (dotW - effectiveW) / 2
	} else {
		effectiveH = max(int(float64(dotW)/geoAspect), 4)
		offsetY = (dotH - effectiveH) / 2
	}

	borderGrid := newGrid(dotW, dotH)
	pointGrid := newGrid(dotW, dotH)
	selGrid := newGrid(dotW, dotH)

	toDot := func(p orb.Point) (int, int) {
		x := offsetX + int((p.Lon()-m.minLng)/lngRange*float64(effectiveW-1))
		y := offsetY + int((m.maxLat-p.Lat())/latRange*float64(effectiveH-1))
		return x, y
	}

	for _, poly := range m.border {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				x0, y0 := toDot(ring[i])
				x1, y1 := toDot(ring[i+1])
				drawLine(borderGrid, x0, y0, x1, y1, dotW, dotH)
			}
		}
	}

	for i, p := range m.points {
		x, y := toDot(p)
		if x < 0 || x >= dotW || y < 0 || y >= dotH {
			continue
		}
		if i == m.selected {
			selGrid[y][x] = true
		} else {
			pointGrid[y][x] = true
		}
	}

	borderStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
	pointStyle := lipgloss.NewStyle().Foreground(styles.Success)
	selStyle := lipgloss.NewStyle().Foreground(styles.Warning).Bold(true)

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			border, point, sel := cell(borderGrid, row, col), cell(pointGrid, row, col), cell(selGrid, row, col)
			switch {
			case sel != 0x2800:
				sb.WriteString(selStyle.Render(string(sel | point)))
			case point != 0x2800:
				sb.WriteString(pointStyle.Render(string(point)))
			case border != 0x2800:
				sb.WriteString(borderStyle.Render(string(border)))
			default:
				sb.WriteRune(' ')
			}
		}
		if row < rows-1 {
			sb.WriteRune('\n')
		}
	}
	return sb.String()
}

func newGrid(w, h int) [][]bool {
	g := make([][]bool, h)
	for i := range g {
		g[i] = make([]bool, w)
	}
	return g
}

// cell returns the braille rune for the 2x4 dots of one character.
func cell(grid [][]bool, row, col int) rune {
	var v rune = 0x2800
	for dot := 0; dot < 8; dot++ {
		dy := row*4 + dotPositions[dot][0]
		dx := col*2 + dotPositions[dot][1]
		if dy < len(grid) && dx < len(grid[dy]) && grid[dy][dx] {
			v |= brailleDots[dot]
		}
	}
	return v
}

// drawLine draws a line between two points using Bresenham's algorithm.
func drawLine(grid [][]bool, x0, y0, x1, y1, maxW, maxH int) {
	// Segments far outside the view are skipped.
	if (x0 < 0 && x1 < 0) || (y0 < 0 && y1 < 0) || (x0 >= maxW && x1 >= maxW) || (y0 >= maxH && y1 >= maxH) {
		return
	}
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= 0 && x0 < maxW && y0 >= 0 && y0 < maxH {
			grid[y0][x0] = true
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
