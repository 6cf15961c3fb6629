package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

const (
	defaultSquareSize = 64
	sideMargin        = 28
	topMargin         = 64
	bottomMargin      = 28
	panelHeight       = 30
	panelRadius       = 10
	panelPaddingX     = 16
	gapToBoard        = 14
)

var (
	lightSquare       = color.RGBA{233, 207, 163, 255}
	darkSquare        = color.RGBA{187, 136, 96, 255}
	backgroundColor   = color.RGBA{20, 22, 33, 255}
	humanMoveFill     = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	aiMoveArrow       = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	selectedRingColor = color.NRGBA{R: 8, G: 214, B: 120, A: 230}
	hudPanelColor     = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudTextColor      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	coordinateColor   = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// Highlight marks the last move. Moves by the human are filled, AI moves get an arrow.
type Highlight struct {
	From    string
	To      string
	ByHuman bool
}

type Options struct {
	Orientation domain.Side
	LastMove    *Highlight
	Selected    string
	Header      string
	Status      string
}

// BoardRenderer draws a FEN position to PNG.
type BoardRenderer struct {
	squareSize int
	face       font.Face
}

func NewBoardRenderer(squareSize int) *BoardRenderer {
	if squareSize <= 0 {
		squareSize = defaultSquareSize
	}
	return &BoardRenderer{squareSize: squareSize, face: basicfont.Face7x13}
}

func (r *BoardRenderer) RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	if strings.TrimSpace(fen) == "" {
		return nil, fmt.Errorf("%w: empty fen", chess.ErrMalformedPosition)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	boardSize := r.squareSize * 8
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	origin := image.Pt(sideMargin, topMargin)

	r.drawSquares(img, origin, opts.Orientation)
	hl := opts.LastMove
	if hl != nil && (!chess.IsSquare(hl.From) || !chess.IsSquare(hl.To)) {
		hl = nil
	}
	if hl != nil && hl.ByHuman {
		fillRect(img, r.squareRect(hl.From, origin, opts.Orientation), humanMoveFill)
		fillRect(img, r.squareRect(hl.To, origin, opts.Orientation), humanMoveFill)
	}
	if chess.IsSquare(opts.Selected) {
		drawRing(img, r.squareRect(strings.ToLower(opts.Selected), origin, opts.Orientation), max(2, r.squareSize/16), selectedRingColor)
	}
	if err := r.drawPieces(img, fen, origin, opts.Orientation); err != nil {
		return nil, err
	}
	if hl != nil && !hl.ByHuman {
		drawArrow(img, r.squareRect(hl.From, origin, opts.Orientation), r.squareRect(hl.To, origin, opts.Orientation), aiMoveArrow)
	}
	r.drawCoordinates(img, origin, opts.Orientation)
	r.drawHUD(img, origin, opts)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// squareRect maps a square name to its pixel rectangle for the given orientation.
func (r *BoardRenderer) squareRect(sq string, origin image.Point, orientation domain.Side) image.Rectangle {
	sq = strings.ToLower(sq)
	file := int(sq[0] - 'a')
	rank := int(sq[1] - '1')
	col, row := file, 7-rank
	if orientation == domain.Black {
		col, row = 7-file, rank
	}
	x := origin.X + col*r.squareSize
	y := origin.Y + row*r.squareSize
	return image.Rect(x, y, x+r.squareSize, y+r.squareSize)
}

func (r *BoardRenderer) drawSquares(img *image.RGBA, origin image.Point, orientation domain.Side) {
	for file := 0; file < 8; file++ {
		for rank := 0; rank < 8; rank++ {
			sq := string(rune('a'+file)) + strconv.Itoa(rank+1)
			clr := lightSquare
			if (file+rank)%2 == 0 {
				clr = darkSquare
			}
			imagedraw.Draw(img, r.squareRect(sq, origin, orientation), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func (r *BoardRenderer) drawPieces(img *image.RGBA, fen string, origin image.Point, orientation domain.Side) error {
	for sq, piece := range chess.BoardFromFEN(fen) {
		pi, err := pieceImage(piece, r.squareSize)
		if err != nil {
			return err
		}
		rect := r.squareRect(sq, origin, orientation)
		imagedraw.Draw(img, rect, pi, image.Point{}, imagedraw.Over)
	}
	return nil
}

func (r *BoardRenderer) drawCoordinates(img *image.RGBA, origin image.Point, orientation domain.Side) {
	drawer := &font.Drawer{Dst: img, Face: r.face, Src: image.NewUniform(coordinateColor)}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		rank := strconv.Itoa(i + 1)
		rankRect := r.squareRect("a"+rank, origin, orientation)
		drawCenteredText(drawer, rank, origin.X-sideMargin/2, rankRect.Min.Y+r.squareSize/2+ascent/2)

		file := string(rune('a' + i))
		fileRect := r.squareRect(file+"1", origin, orientation)
		drawCenteredText(drawer, file, fileRect.Min.X+r.squareSize/2, origin.Y+8*r.squareSize+ascent+4)
	}
}

func (r *BoardRenderer) drawHUD(img *image.RGBA, origin image.Point, opts Options) {
	boardWidth := 8 * r.squareSize
	drawer := &font.Drawer{Dst: img, Face: r.face}
	bottom := origin.Y - gapToBoard
	top := bottom - panelHeight

	if header := strings.TrimSpace(opts.Header); header != "" {
		width := min(drawer.MeasureString(header).Round()+panelPaddingX*2, boardWidth/2)
		rect := image.Rect(origin.X, top, origin.X+width, bottom)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncate(drawer, header, width-panelPaddingX*2), hudTextColor)
	}
	if status := strings.TrimSpace(opts.Status); status != "" {
		width := min(drawer.MeasureString(status).Round()+panelPaddingX*2, boardWidth/2-8)
		rect := image.Rect(origin.X+boardWidth-width, top, origin.X+boardWidth, bottom)
		drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
		drawCenteredString(drawer, rect, truncate(drawer, status, width-panelPaddingX*2), hudTextColor)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawCenteredString(drawer *font.Drawer, rect image.Rectangle, text string, clr color.Color) {
	if text == "" {
		return
	}
	m := drawer.Face.Metrics()
	width := drawer.MeasureString(text).Round()
	x := max(rect.Min.X, rect.Min.X+(rect.Dx()-width)/2)
	baseline := rect.Min.Y + (rect.Dy()+m.Ascent.Ceil()-m.Descent.Ceil())/2
	drawer.Src = image.NewUniform(clr)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

// truncate shortens text with "..." until it fits maxWidth pixels.
func truncate(drawer *font.Drawer, text string, maxWidth int) string {
	if drawer.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if c := string(runes) + "..."; drawer.MeasureString(c).Round() <= maxWidth {
			return c
		}
	}
	return ""
}
