package feed

import (
	"context"
	"strings"
	"time"

	"labelguard/internal/logger"

	"github.com/tarm/serial"
)

const (
	serialReadTimeout = 250 * time.Millisecond
	reopenDelay       = 900 * time.Millisecond
	reconnectDelay    = 400 * time.Millisecond
)

type SerialConfig struct {
	Device string
	Baud   int
}

// RunSerial reads tokens from a serial barcode scanner until ctx is done,
// reopening the port after errors.
func RunSerial(ctx context.Context, cfg SerialConfig, out chan<- string, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	device := strings.TrimSpace(cfg.Device)
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	log.Infow("serial_feed_start", "device", device, "baud", cfg.Baud)

	for {
		if ctx.Err() != nil {
			return
		}

		port, err := serial.OpenPort(&serial.Config{Name: device, Baud: cfg.Baud, ReadTimeout: serialReadTimeout})
		if err != nil {
			log.Warnw("serial_open_failed", "device", device, "err", err)
			if !sleepWithContext(ctx, reopenDelay) {
				return
			}
			continue
		}
		log.Infow("serial_port_opened", "device", device, "baud", cfg.Baud)

		err = readTokens(ctx, port, out, true)
		_ = port.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warnw("serial_read_failed", "device", device, "err", err)
		}
		if !sleepWithContext(ctx, reconnectDelay) {
			return
		}
	}
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
