package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/models"
	"labelguard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 12
	defaultInterval = time.Second
	maxInterval     = 10 * time.Second
	commandBacklog  = 8
)

// Outbound message types.
const (
	msgState   = "state"
	msgIgnored = "ignored"
	msgError   = "error"
)

type wsEnvelope struct {
	Type  string           `json:"type"`
	Data  *models.Snapshot `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
}

// wsCommand is what a station display may send: a keyboard-wedge scan, or
// the confirm and reset buttons.
type wsCommand struct {
	Type string `json:"type"` // "scan", "confirm" or "reset"
	Code string `json:"code,omitempty"`

	malformed bool
}

// Station displays connect from the line network, any origin is accepted.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// displaySession serves one connected display. Only run writes to conn.
type displaySession struct {
	conn     *websocket.Conn
	services *service.Service
	log      *logger.Logger
	commands chan wsCommand
	closed   chan struct{} // reader gone
	quit     chan struct{} // writer gone
}

// @Summary      Live station state
// @Description  Pushes {"type":"state","data":Snapshot} on every transition and every 'interval'. Accepts {"type":"scan","code":"..."}, {"type":"confirm"} and {"type":"reset"}.
// @Tags         validation
// @Param        interval     query  string  false  "Refresh period, e.g. 500ms (max 10s)"
// @Param        interval_ms  query  int     false  "Refresh period in milliseconds"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	log := h.log
	if log == nil {
		log = logger.Nop()
	}
	s := &displaySession{
		conn:     conn,
		services: h.services,
		log:      log,
		commands: make(chan wsCommand, commandBacklog),
		closed:   make(chan struct{}),
		quit:     make(chan struct{}),
	}
	go s.read()
	s.run(c.Request.Context(), interval)
}

// parseInterval reads ?interval=2s or ?interval_ms=2000, falling back to
// the default when neither is usable.
func parseInterval(c *gin.Context) time.Duration {
	if d, err := time.ParseDuration(c.Query("interval")); err == nil && d > 0 && d <= maxInterval {
		return d
	}
	if ms, err := strconv.Atoi(c.Query("interval_ms")); err == nil && ms > 0 {
		if d := time.Duration(ms) * time.Millisecond; d <= maxInterval {
			return d
		}
	}
	return defaultInterval
}

func (s *displaySession) run(ctx context.Context, interval time.Duration) {
	defer func() {
		close(s.quit)
		_ = s.conn.Close()
	}()

	updates, unsubscribe := s.services.Subscribe()
	defer unsubscribe()

	refresh := time.NewTicker(interval)
	defer refresh.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.sendState(ctx); err != nil {
		s.log.Infow("ws_initial_state_failed", "err", err)
		return
	}

	for {
		var err error
		select {
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = s.conn.WriteMessage(websocket.PingMessage, nil)
		case snap, ok := <-updates:
			if !ok {
				return
			}
			err = s.write(wsEnvelope{Type: msgState, Data: &snap})
		case <-refresh.C:
			err = s.sendState(ctx)
		case cmd := <-s.commands:
			err = s.handle(ctx, cmd)
		}
		if err != nil {
			s.log.Infow("ws_write_failed", "err", err)
			return
		}
	}
}

// read decodes commands until the peer goes away. Control frames are
// handled inside ReadMessage.
func (s *displaySession) read() {
	defer close(s.closed)

	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debugw("ws_read_closed", "err", err)
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			cmd = wsCommand{malformed: true}
		}
		select {
		case s.commands <- cmd:
		case <-s.quit:
			return
		}
	}
}

// handle runs one display command and answers with the resulting state.
func (s *displaySession) handle(ctx context.Context, cmd wsCommand) error {
	var (
		snap models.Snapshot
		err  error
	)
	if cmd.malformed {
		return s.write(wsEnvelope{Type: msgError, Error: "malformed command"})
	}
	switch strings.ToLower(cmd.Type) {
	case "scan":
		if strings.TrimSpace(cmd.Code) == "" {
			return s.write(wsEnvelope{Type: msgError, Error: errEmptyCode})
		}
		snap, err = s.services.Scan(ctx, cmd.Code)
	case "confirm":
		snap, err = s.services.Confirm(ctx)
	case "reset":
		snap, err = s.services.Reset(ctx)
	default:
		return s.write(wsEnvelope{Type: msgError, Error: "unknown command " + strconv.Quote(cmd.Type)})
	}

	switch {
	case err == nil:
		return s.write(wsEnvelope{Type: msgState, Data: &snap})
	case errors.Is(err, service.ErrDuplicateScan):
		return s.write(wsEnvelope{Type: msgIgnored, Data: &snap})
	case statusFor(err) == http.StatusConflict:
		return s.write(wsEnvelope{Type: msgError, Error: err.Error(), Data: &snap})
	default:
		s.log.Errorw("ws_command_failed", "command", cmd.Type, "err", err)
		return s.write(wsEnvelope{Type: msgError, Error: "command failed"})
	}
}

func (s *displaySession) sendState(ctx context.Context) error {
	snap, err := s.services.State(ctx)
	if err != nil {
		return err
	}
	return s.write(wsEnvelope{Type: msgState, Data: &snap})
}

func (s *displaySession) write(env wsEnvelope) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}
