package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
)

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func sameRGB(a color.Color, b color.RGBA) bool {
	r, g, bl, _ := a.RGBA()
	return uint8(r>>8) == b.R && uint8(g>>8) == b.G && uint8(bl>>8) == b.B
}

func TestRenderPNGDimensionsAndSquares(t *testing.T) {
	r := NewBoardRenderer(32)
	data, err := r.RenderPNG(context.Background(), chess.StartFEN, Options{Orientation: domain.White, Header: "Advanced", Status: "Your turn (White)."})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	if got := img.Bounds().Size(); got != image.Pt(32*8+sideMargin*2, 32*8+topMargin+bottomMargin) {
		t.Fatalf("unexpected size %v", got)
	}
	origin := image.Pt(sideMargin, topMargin)
	a3 := r.squareRect("a3", origin, domain.White)
	if a3.Min != image.Pt(sideMargin, topMargin+5*32) {
		t.Fatalf("unexpected a3 rect %v", a3)
	}
	if px := img.At(a3.Min.X+1, a3.Min.Y+1); !sameRGB(px, darkSquare) {
		t.Fatalf("a3 should be dark, got %v", px)
	}
	b3 := r.squareRect("b3", origin, domain.White)
	if px := img.At(b3.Min.X+1, b3.Min.Y+1); !sameRGB(px, lightSquare) {
		t.Fatalf("b3 should be light, got %v", px)
	}
}

func TestRenderPNGBlackOrientation(t *testing.T) {
	r := NewBoardRenderer(16)
	origin := image.Pt(sideMargin, topMargin)
	if got := r.squareRect("h1", origin, domain.Black); got.Min != origin {
		t.Fatalf("h1 should be top-left for black, got %v", got)
	}
	if got := r.squareRect("a8", origin, domain.Black); got.Min != image.Pt(sideMargin+7*16, topMargin+7*16) {
		t.Fatalf("a8 should be bottom-right for black, got %v", got)
	}
	if _, err := r.RenderPNG(context.Background(), chess.StartFEN, Options{Orientation: domain.Black, Selected: "e7"}); err != nil {
		t.Fatalf("render: %v", err)
	}
}

func TestRenderPNGHighlightsHumanMove(t *testing.T) {
	r := NewBoardRenderer(32)
	data, err := r.RenderPNG(context.Background(), afterE4, Options{
		Orientation: domain.White,
		LastMove:    &Highlight{From: "e2", To: "e4", ByHuman: true},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img := decode(t, data)
	e3 := r.squareRect("e3", image.Pt(sideMargin, topMargin), domain.White)
	e2 := r.squareRect("e2", image.Pt(sideMargin, topMargin), domain.White)
	plain := img.At(e3.Min.X+1, e3.Min.Y+1)
	lit := img.At(e2.Min.X+1, e2.Min.Y+1)
	if sameRGB(lit, lightSquare) || sameRGB(lit, darkSquare) || lit == plain {
		t.Fatalf("e2 should be highlighted, got %v", lit)
	}
}

func TestRenderPNGErrors(t *testing.T) {
	r := NewBoardRenderer(0)
	if _, err := r.RenderPNG(context.Background(), "", Options{}); !errors.Is(err, chess.ErrMalformedPosition) {
		t.Fatalf("expected malformed position, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, chess.StartFEN, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := r.RenderPNG(context.Background(), "8/8/8/8/8/8/8/X7 w - - 0 1", Options{}); err == nil {
		t.Fatalf("unknown piece letter must fail")
	}
}

func TestPieceAssetsParse(t *testing.T) {
	for _, p := range []string{"K", "Q", "R", "B", "N", "P", "k", "q", "r", "b", "n", "p"} {
		if _, err := pieceImage(p, 24); err != nil {
			t.Fatalf("piece %s: %v", p, err)
		}
	}
}
