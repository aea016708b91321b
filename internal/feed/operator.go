package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"labelguard/internal/logger"
	"labelguard/internal/models"
	"labelguard/internal/service"
)

// Command is a manual operator command typed or scanned as "/name".
type Command string

const (
	CmdNone    Command = ""
	CmdReset   Command = "reset"
	CmdConfirm Command = "confirm"
	CmdHistory Command = "history"
	CmdConfig  Command = "config"
	CmdUnknown Command = "unknown"
)

// ParseCommand maps a token to a command. Tokens not starting with "/" are
// scans and map to CmdNone.
func ParseCommand(token string) Command {
	if !strings.HasPrefix(token, "/") {
		return CmdNone
	}
	switch strings.ToLower(strings.TrimSpace(token[1:])) {
	case "reset", "esc", "f9":
		return CmdReset
	case "confirm", "ok":
		return CmdConfirm
	case "history", "f6":
		return CmdHistory
	case "config":
		return CmdConfig
	default:
		return CmdUnknown
	}
}

// Validator is the part of the validation service the feed drives.
type Validator interface {
	Scan(ctx context.Context, raw string) (models.Snapshot, error)
	Confirm(ctx context.Context) (models.Snapshot, error)
	Reset(ctx context.Context) (models.Snapshot, error)
}

type StatsReader interface {
	Stats(ctx context.Context) (service.HistoryStats, error)
}

type ConfigReader interface {
	Get(ctx context.Context) (models.ValidationConfig, error)
}

// Operator dispatches feed tokens to the validation service and prints the
// resulting state for the operator's terminal.
type Operator struct {
	validator Validator
	stats     StatsReader
	config    ConfigReader
	out       io.Writer
	log       *logger.Logger
}

func NewOperator(v Validator, stats StatsReader, cfg ConfigReader, out io.Writer, log *logger.Logger) *Operator {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Operator{validator: v, stats: stats, config: cfg, out: out, log: log}
}

// Run handles tokens until ctx is done or tokens is closed.
func (o *Operator) Run(ctx context.Context, tokens <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case tok, ok := <-tokens:
			if !ok {
				return
			}
			o.Handle(ctx, tok)
		}
	}
}

// Handle processes one token.
func (o *Operator) Handle(ctx context.Context, token string) {
	switch cmd := ParseCommand(token); cmd {
	case CmdNone:
		snap, err := o.validator.Scan(ctx, token)
		switch {
		case errors.Is(err, service.ErrDuplicateScan):
			o.log.Debugw("feed_duplicate_scan", "token", token)
		case errors.Is(err, service.ErrScanningLocked):
			o.printf("scan ignored: %s (reset with /reset)\n", snap.Message)
		case err != nil:
			o.log.Errorw("feed_scan_failed", "err", err)
		default:
			o.printSnapshot(snap)
		}
	case CmdReset:
		o.reply(o.validator.Reset(ctx))
	case CmdConfirm:
		o.reply(o.validator.Confirm(ctx))
	case CmdHistory:
		if o.stats == nil {
			return
		}
		st, err := o.stats.Stats(ctx)
		if err != nil {
			o.log.Errorw("feed_history_failed", "err", err)
			return
		}
		o.printf("history: total=%d approved=%d rejected=%d errors=%d\n", st.Total, st.Approved, st.Rejected, st.Errors)
	case CmdConfig:
		if o.config == nil {
			return
		}
		cfg, err := o.config.Get(ctx)
		if err != nil {
			o.log.Errorw("feed_config_failed", "err", err)
			return
		}
		o.printf("config: auto_reset=%.1fs sound=%t\n", cfg.AutoResetSeconds, cfg.SoundEnabled)
	default:
		o.log.Warnw("feed_unknown_command", "token", token)
		o.printf("unknown command %q\n", token)
	}
}

func (o *Operator) reply(snap models.Snapshot, err error) {
	if err != nil {
		o.printf("%v\n", err)
		return
	}
	o.printSnapshot(snap)
}

func (o *Operator) printSnapshot(s models.Snapshot) {
	o.printf("[%s] %s\n", strings.ToUpper(string(s.State)), s.Message)
}

func (o *Operator) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.out, format, args...)
}
