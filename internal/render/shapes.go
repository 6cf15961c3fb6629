package render

import (
	"image"
	"image/color"
	imagedraw "image/draw"
	"math"
)

type pointF struct {
	X float64
	Y float64
}

func fillRect(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

// drawArrow draws a filled arrow between the centres of two square rectangles.
func drawArrow(img *image.RGBA, from, to image.Rectangle, clr color.Color) {
	size := float64(from.Dx())
	sx := float64(from.Min.X) + size/2
	sy := float64(from.Min.Y) + size/2
	ex := float64(to.Min.X) + size/2
	ey := float64(to.Min.Y) + size/2

	length := math.Hypot(ex-sx, ey-sy)
	if length == 0 {
		return
	}
	dirX, dirY := (ex-sx)/length, (ey-sy)/length
	perpX, perpY := -dirY, dirX

	shaft := length - size*0.45
	if shaft < size*0.35 {
		shaft = length * 0.6
	}
	half := size * 0.18
	head := size * 0.32
	bx, by := sx+dirX*shaft, sy+dirY*shaft

	fillTriangle(img,
		pointF{sx - perpX*half, sy - perpY*half},
		pointF{sx + perpX*half, sy + perpY*half},
		pointF{bx + perpX*half, by + perpY*half}, clr)
	fillTriangle(img,
		pointF{sx - perpX*half, sy - perpY*half},
		pointF{bx + perpX*half, by + perpY*half},
		pointF{bx - perpX*half, by - perpY*half}, clr)
	fillTriangle(img,
		pointF{ex, ey},
		pointF{bx - perpX*head/2, by - perpY*head/2},
		pointF{bx + perpX*head/2, by + perpY*head/2}, clr)
}

func fillTriangle(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(min(a.X, b.X, c.X)))
	maxX := int(math.Ceil(max(a.X, b.X, c.X)))
	minY := int(math.Floor(min(a.Y, b.Y, c.Y)))
	maxY := int(math.Ceil(max(a.Y, b.Y, c.Y)))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				blendPixel(img, x, y, clr)
			}
		}
	}
}

func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

// drawRing outlines rect with a border of the given width.
func drawRing(img *image.RGBA, rect image.Rectangle, width int, clr color.Color) {
	fillRect(img, image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+width), clr)
	fillRect(img, image.Rect(rect.Min.X, rect.Max.Y-width, rect.Max.X, rect.Max.Y), clr)
	fillRect(img, image.Rect(rect.Min.X, rect.Min.Y+width, rect.Min.X+width, rect.Max.Y-width), clr)
	fillRect(img, image.Rect(rect.Max.X-width, rect.Min.Y+width, rect.Max.X, rect.Max.Y-width), clr)
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if rect.Empty() {
		return
	}
	radius = max(0, min(radius, rect.Dx()/2, rect.Dy()/2))
	if radius == 0 {
		fillRect(img, rect, clr)
		return
	}
	fillRect(img, image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y), clr)
	fillRect(img, image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius), clr)
	fillRect(img, image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius), clr)
	for _, c := range []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	} {
		drawQuarterDiscs(img, c, radius, rect, clr)
	}
}

// drawQuarterDiscs fills the disc at c but only the pixels inside rect that the
// rectangular fills above left uncovered.
func drawQuarterDiscs(img *image.RGBA, c image.Point, radius int, rect image.Rectangle, clr color.Color) {
	inner := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y).
		Union(image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius))
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			p := image.Pt(c.X+x, c.Y+y)
			if x*x+y*y > r2 || !p.In(rect) || p.In(inner) {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}
