package extract

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	placeholderFill   = color.RGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	placeholderBorder = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}
	placeholderText   = color.RGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}
)

// Grid is the composited frame raster: Columns × Rows square cells.
type Grid struct {
	img      *image.RGBA
	columns  int
	cells    int
	cellSize int
}

// NewGrid allocates a grid cleared to the background colour.
func NewGrid(cfg Config) *Grid {
	w := cfg.Columns * cfg.CellSize
	h := cfg.Rows() * cfg.CellSize

	g := &Grid{
		img:      image.NewRGBA(image.Rect(0, 0, w, h)),
		columns:  cfg.Columns,
		cells:    cfg.Frames,
		cellSize: cfg.CellSize,
	}
	draw.Draw(g.img, g.img.Bounds(), image.NewUniform(cfg.Background), image.Point{}, draw.Src)
	return g
}

// Cell returns the rectangle of cell index (row-major).
func (g *Grid) Cell(index int) image.Rectangle {
	x := (index % g.columns) * g.cellSize
	y := (index / g.columns) * g.cellSize
	return image.Rect(x, y, x+g.cellSize, y+g.cellSize)
}

// DrawFrame scales src into cell index, stretching to fill it.
func (g *Grid) DrawFrame(index int, src image.Image) error {
	if err := g.check(index); err != nil {
		return err
	}
	draw.BiLinear.Scale(g.img, g.Cell(index), src, src.Bounds(), draw.Src, nil)
	return nil
}

// DrawPlaceholder fills cell index with a bordered tile labelled label.
func (g *Grid) DrawPlaceholder(index int, label string) error {
	if err := g.check(index); err != nil {
		return err
	}

	cell := g.Cell(index)
	draw.Draw(g.img, cell, image.NewUniform(placeholderBorder), image.Point{}, draw.Src)
	draw.Draw(g.img, cell.Inset(2), image.NewUniform(placeholderFill), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	width := font.MeasureString(face, label).Ceil()
	x := cell.Min.X + (cell.Dx()-width)/2
	y := cell.Min.Y + (cell.Dy()+face.Ascent)/2

	d := &font.Drawer{
		Dst:  g.img,
		Src:  image.NewUniform(placeholderText),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
	return nil
}

// Image returns the grid raster.
func (g *Grid) Image() *image.RGBA {
	return g.img
}

func (g *Grid) check(index int) error {
	if index < 0 || index >= g.cells {
		return fmt.Errorf("extract: cell %d out of range [0, %d)", index, g.cells)
	}
	return nil
}
