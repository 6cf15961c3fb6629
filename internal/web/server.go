package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLM-Chess/internal/adapter/chesspresenter"
	"github.com/park285/Cheese-LLM-Chess/internal/archive"
	"github.com/park285/Cheese-LLM-Chess/internal/domain"
	"github.com/park285/Cheese-LLM-Chess/internal/render"
	"github.com/park285/Cheese-LLM-Chess/internal/session"
	"github.com/park285/Cheese-LLM-Chess/pkg/chessdto"
)

const (
	sessionCookie    = "chess_session"
	maxBodyBytes     = 16 << 10
	defaultGameLimit = 20
	maxGameLimit     = 100
	renderTimeout    = 5 * time.Second
)

// Preferences seeds a new session's difficulty from what the browser chose last time.
type Preferences interface {
	Preferred(ctx context.Context, sessionID string, def domain.Difficulty) domain.Difficulty
}

type Config struct {
	Registry  *session.Registry
	Presenter *chesspresenter.Presenter
	Renderer  *render.BoardRenderer
	Recorder  *archive.Recorder
	Prefs     Preferences

	DefaultHumanSide  domain.Side
	DefaultDifficulty domain.Difficulty
	// OriginPatterns are passed to the websocket handshake; empty allows same-origin only.
	OriginPatterns []string
	PingInterval   time.Duration
	Logger         *zap.Logger
}

// Server is the browser-facing HTTP API.
type Server struct {
	cfg    Config
	logger *zap.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.Presenter == nil {
		cfg.Presenter = chesspresenter.NewPresenter(nil)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.NewBoardRenderer(0)
	}
	if !cfg.DefaultDifficulty.Valid() {
		cfg.DefaultDifficulty = domain.Intermediate
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleView)
			r.Post("/move", s.handleMove)
			r.Post("/click", s.handleClick)
			r.Post("/new", s.handleNewGame)
			r.Post("/switch", s.handleSwitchSides)
			r.Post("/difficulty", s.handleDifficulty)
			r.Post("/retry", s.handleRetry)
			r.Get("/board.png", s.handleBoard)
			r.Get("/games", s.handleGames)
			r.Get("/ws", s.handleWS)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sessions": s.cfg.Registry.Len()})
}

// handleCreateSession resumes the session named by the cookie when it is still live,
// otherwise starts a new one, reusing the cookie id so stored preferences carry over.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req chessdto.CreateSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeError(w, err)
		return
	}
	side := s.cfg.DefaultHumanSide
	if req.HumanSide != "" {
		parsed, err := domain.ParseSide(req.HumanSide)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		side = parsed
	}
	var explicitLevel *domain.Difficulty
	if req.Difficulty != "" {
		parsed, err := domain.ParseDifficulty(req.Difficulty)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		explicitLevel = &parsed
	}

	id := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, perr := uuid.Parse(c.Value); perr == nil {
			id = c.Value
		}
	}
	if id != "" && req.HumanSide == "" && req.Difficulty == "" {
		if sess, err := s.cfg.Registry.Get(id); err == nil {
			s.writeCreated(w, http.StatusOK, sess)
			return
		}
	}
	if id != "" {
		s.cfg.Registry.Remove(id)
	}

	level := s.cfg.DefaultDifficulty
	if explicitLevel != nil {
		level = *explicitLevel
	} else if s.cfg.Prefs != nil && id != "" {
		level = s.cfg.Prefs.Preferred(r.Context(), id, level)
	}

	sess, err := s.cfg.Registry.Create(id, side, level)
	if errors.Is(err, session.ErrSessionExists) {
		sess, err = s.cfg.Registry.Get(id)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
	s.writeCreated(w, http.StatusCreated, sess)
}

func (s *Server) writeCreated(w http.ResponseWriter, status int, sess *session.Session) {
	writeJSON(w, status, chessdto.CreateSessionResponse{SessionID: sess.ID, Game: s.view(sess)})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(sess))
}

func (s *Server) view(sess *session.Session) chessdto.GameView {
	return s.cfg.Presenter.View(sess.ID, sess.Controller.Snapshot(), sess.Selector.Selected())
}

// session resolves {id} and writes a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.cfg.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody reads a JSON body into dst. An empty body is accepted when optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid payload", errBadRequest)
	}
	return nil
}
