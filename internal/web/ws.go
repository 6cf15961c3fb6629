package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 5 * time.Second
)

// handleWS pushes a GameView after every state change of the session's controller.
// Client messages are ignored; moves go through the HTTP endpoints.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	logger := s.logger.With(zap.String("session_id", sess.ID))
	states, unsubscribe := sess.Controller.Subscribe()
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	if err := s.push(ctx, conn, s.view(sess)); err != nil {
		return
	}

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case st, open := <-states:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := s.push(ctx, conn, s.cfg.Presenter.View(sess.ID, st, sess.Selector.Selected())); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Debug("websocket push failed", zap.Error(err))
				}
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}
