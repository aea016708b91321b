package interlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labelguard/internal/logger"
	"labelguard/internal/models"

	"github.com/goburrow/modbus"
)

// Register codes written for each outcome.
const (
	CodeWaiting  uint16 = 0
	CodeApproved uint16 = 1
	CodeRejected uint16 = 2
	CodeError    uint16 = 3
	CodeBlocked  uint16 = 4
)

const retryBackoff = 2 * time.Second

// OutcomeCode maps an outcome to its register value. Unknown outcomes map
// to CodeError so the line stops rather than runs.
func OutcomeCode(o models.Outcome) uint16 {
	switch o {
	case models.OutcomeWaiting:
		return CodeWaiting
	case models.OutcomeApproved:
		return CodeApproved
	case models.OutcomeRejected:
		return CodeRejected
	case models.OutcomeBlocked:
		return CodeBlocked
	default:
		return CodeError
	}
}

type Config struct {
	Endpoint string
	UnitID   uint8
	Register uint16
	Timeout  time.Duration
}

// conn is the part of a Modbus client the interlock needs.
type conn interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	Close() error
}

type dialFunc func(cfg Config) (conn, error)

type tcpConn struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func (c *tcpConn) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	return c.client.WriteMultipleRegisters(address, quantity, value)
}

func (c *tcpConn) Close() error { return c.handler.Close() }

func dialTCP(cfg Config) (conn, error) {
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID
	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &tcpConn{handler: h, client: modbus.NewClient(h)}, nil
}

// Modbus publishes the current outcome to a PLC holding register. Signal
// never blocks; only the latest outcome is written, and failed writes are
// retried after reconnecting.
type Modbus struct {
	cfg     Config
	dial    dialFunc
	backoff time.Duration
	log     *logger.Logger

	pending chan models.Outcome
	conn    conn
}

func NewModbus(cfg Config, log *logger.Logger) (*Modbus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("interlock modbus: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Modbus{
		cfg:     cfg,
		dial:    dialTCP,
		backoff: retryBackoff,
		log:     log,
		pending: make(chan models.Outcome, 1),
	}, nil
}

// Signal queues o, replacing any outcome not yet written.
func (m *Modbus) Signal(o models.Outcome) {
	for {
		select {
		case m.pending <- o:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Run writes queued outcomes until ctx is done.
func (m *Modbus) Run(ctx context.Context) {
	defer m.closeConn()

	var (
		current models.Outcome
		dirty   bool
	)
	for {
		if !dirty {
			select {
			case <-ctx.Done():
				return
			case current = <-m.pending:
				dirty = true
			}
		}
		select {
		case o := <-m.pending:
			current = o
		default:
		}

		if err := m.write(current); err != nil {
			m.log.Warnw("interlock_write_failed", "endpoint", m.cfg.Endpoint, "outcome", current, "err", err)
			m.closeConn()
			if !sleepWithContext(ctx, m.backoff) {
				return
			}
			continue
		}
		dirty = false
	}
}

func (m *Modbus) write(o models.Outcome) error {
	if m.conn == nil {
		c, err := m.dial(m.cfg)
		if err != nil {
			return fmt.Errorf("connect %s: %w", m.cfg.Endpoint, err)
		}
		m.conn = c
		m.log.Infow("interlock_connected", "endpoint", m.cfg.Endpoint, "unit_id", m.cfg.UnitID)
	}
	_, err := m.conn.WriteMultipleRegisters(m.cfg.Register, 1, packRegisters([]uint16{OutcomeCode(o)}))
	return err
}

func (m *Modbus) closeConn() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Noop is used when no interlock is configured.
type Noop struct{}

func (Noop) Signal(models.Outcome) {}
