package viz

import (
	"math"
	"strings"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Pixels returns the canvas size in sub-pixels.
func (c *Canvas) Pixels() (int, int) {
	return c.Width * 2, c.Height * 4
}

// Set lights the sub-pixel at (x, y); out-of-range points are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) IsSet(x, y int) bool {
	if x < 0 || y < 0 || x/2 >= c.Width || y/4 >= c.Height {
		return false
	}
	return c.Grid[y/4][x/2]&rune(pixelMap[y%4][x%2]) != 0
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm. Segments lying wholly
// off one side of the canvas are skipped.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	pw, ph := c.Pixels()
	if (x0 < 0 && x1 < 0) || (y0 < 0 && y1 < 0) || (x0 >= pw && x1 >= pw) || (y0 >= ph && y1 >= ph) {
		return
	}
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Viewport maps local-frame meters onto canvas sub-pixels with one scale
// for both axes; y grows upward.
type Viewport struct {
	MinX, MinY float64
	Scale      float64 // sub-pixels per meter
	H          int     // canvas height in sub-pixels
}

// FitViewport frames the points with a 5% margin.
func FitViewport(c *Canvas, xs, ys []float64) Viewport {
	pw, ph := c.Pixels()
	if len(xs) == 0 {
		return Viewport{Scale: 1, H: ph}
	}
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := range xs {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	rx, ry := maxX-minX, maxY-minY
	if rx < 1 {
		rx = 1
	}
	if ry < 1 {
		ry = 1
	}
	scale := math.Min(float64(pw-1)/(rx*1.1), float64(ph-1)/(ry*1.1))
	// center the content
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	return Viewport{
		MinX:  cx - float64(pw-1)/(2*scale),
		MinY:  cy - float64(ph-1)/(2*scale),
		Scale: scale,
		H:     ph,
	}
}

// CenteredViewport frames a square of side span meters around (x, y).
func CenteredViewport(c *Canvas, x, y, span float64) Viewport {
	pw, ph := c.Pixels()
	scale := math.Min(float64(pw-1), float64(ph-1)) / span
	return Viewport{
		MinX:  x - float64(pw-1)/(2*scale),
		MinY:  y - float64(ph-1)/(2*scale),
		Scale: scale,
		H:     ph,
	}
}

func (v Viewport) ToPixel(x, y float64) (int, int) {
	px := int(math.Round((x - v.MinX) * v.Scale))
	py := v.H - 1 - int(math.Round((y-v.MinY)*v.Scale))
	return px, py
}

// Polyline draws the points joined by straight segments.
func (c *Canvas) Polyline(v Viewport, xs, ys []float64) {
	for i := range xs {
		x1, y1 := v.ToPixel(xs[i], ys[i])
		if i == 0 {
			c.Set(x1, y1)
			continue
		}
		x0, y0 := v.ToPixel(xs[i-1], ys[i-1])
		c.DrawLine(x0, y0, x1, y1)
	}
}

// Marker draws a small cross with a heading tick.
func (c *Canvas) Marker(v Viewport, x, y, yaw float64) {
	px, py := v.ToPixel(x, y)
	for d := -1; d <= 1; d++ {
		c.Set(px+d, py)
		c.Set(px, py+d)
	}
	hx := px + int(math.Round(4*math.Cos(yaw)))
	hy := py - int(math.Round(4*math.Sin(yaw)))
	c.DrawLine(px, py, hx, hy)
}
