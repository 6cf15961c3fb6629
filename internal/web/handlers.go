package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/chess"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/game"
	"github.com/park285/Cheese-LLM-Chess/internal/render"
	"github.com/park285/Cheese-LLM-Chess/internal/session"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req chessdto.MoveRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}

	var desc *chess.MoveDescriptor
	switch {
	case req.Move != "":
		sess.Selector.Clear()
		desc = &chess.MoveDescriptor{Notation: req.Move}
	case req.From != "" && req.To != "":
		d, err := sess.Selector.Drop(sess.Controller.Snapshot(), req.From, req.To)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if d == nil {
			writeJSON(w, http.StatusOK, s.view(sess))
			return
		}
		d.Promotion = req.Promotion
		desc = d
	default:
		s.writeError(w, fmt.Errorf("%w: move or from/to is required", errBadRequest))
		return
	}
	s.applyMove(w, sess, *desc)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req chessdto.ClickRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}
	desc, err := sess.Selector.Click(sess.Controller.Snapshot(), req.Square)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if desc == nil {
		writeJSON(w, http.StatusOK, s.view(sess))
		return
	}
	s.applyMove(w, sess, *desc)
}

func (s *Server) applyMove(w http.ResponseWriter, sess *session.Session, desc chess.MoveDescriptor) {
	st, err := sess.Controller.ApplyMove(desc)
	if err != nil {
		if errors.Is(err, game.ErrNotYourTurn) && st.InFlight {
			writeJSON(w, http.StatusConflict, chessdto.DomainError{
				Code: "ai_thinking", Message: "the AI is still choosing its move", Retryable: true,
			})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Presenter.View(sess.ID, st, sess.Selector.Selected()))
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Selector.Clear()
	st, err := sess.Controller.NewGame()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Presenter.View(sess.ID, st, ""))
}

func (s *Server) handleSwitchSides(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Selector.Clear()
	st, err := sess.Controller.SwitchSides()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Presenter.View(sess.ID, st, ""))
}

func (s *Server) handleDifficulty(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req chessdto.DifficultyRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeError(w, err)
		return
	}
	level, err := domain.ParseDifficulty(req.Level)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess.Selector.Clear()
	st, err := sess.Controller.SetDifficulty(level)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Presenter.View(sess.ID, st, ""))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st, err := sess.Controller.RetryAIMove()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Presenter.View(sess.ID, st, sess.Selector.Selected()))
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	st := sess.Controller.Snapshot()
	opts := render.Options{
		Orientation: st.HumanSide,
		Header:      fmt.Sprintf("You (%s) vs AI - %s", st.HumanSide.Title(), st.Difficulty.Title()),
		Status:      s.cfg.Presenter.Formatter().Status(st),
	}
	if st.Interactive() {
		opts.Selected = sess.Selector.Selected()
	}
	if last, ok := st.LastMove(); ok && len(last.UCI) >= 4 {
		opts.LastMove = &render.Highlight{From: last.UCI[0:2], To: last.UCI[2:4], ByHuman: last.Side == st.HumanSide}
	}

	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()
	img, err := s.cfg.Renderer.RenderPNG(ctx, st.FEN, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		s.logger.Debug("board write failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	limit := defaultGameLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
		limit = min(n, maxGameLimit)
	}
	out := []chessdto.ArchivedGameView{}
	if s.cfg.Recorder != nil {
		games, err := s.cfg.Recorder.Recent(r.Context(), sess.ID, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		for _, g := range games {
			out = append(out, archivedView(g))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func archivedView(g *domain.ArchivedGame) chessdto.ArchivedGameView {
	return chessdto.ArchivedGameView{
		GameID:     g.GameUUID,
		HumanSide:  g.HumanSide.String(),
		Difficulty: g.Difficulty.String(),
		Result:     g.Result,
		Method:     g.Method,
		Moves:      append([]string{}, g.MovesSAN...),
		FinalFEN:   g.FinalFEN,
		StartedAt:  g.StartedAt,
		EndedAt:    g.EndedAt,
	}
}
