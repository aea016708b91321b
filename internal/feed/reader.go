package feed

import (
	"context"
	"errors"
	"io"
	"strings"
)

// maxPending bounds an unterminated token; older bytes are discarded.
const maxPending = 1024

// ReadTokens splits r into CR/LF-terminated tokens and sends each non-empty
// trimmed token to out. At EOF a trailing unterminated token is flushed.
func ReadTokens(ctx context.Context, r io.Reader, out chan<- string) error {
	return readTokens(ctx, r, out, false)
}

// readTokens is shared by stdin and serial sources. With idleEOF an EOF
// means a read timeout on a device that stays open.
func readTokens(ctx context.Context, r io.Reader, out chan<- string, idleEOF bool) error {
	buf := make([]byte, 256)
	pending := ""

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			pending = appendRaw(pending, string(buf[:n]), maxPending)
			for {
				frame, rest, ok := popFrame(pending)
				if !ok {
					break
				}
				pending = rest
				if !send(ctx, out, frame) {
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if idleEOF {
					continue
				}
				send(ctx, out, pending)
				return nil
			}
			return err
		}
	}
}

func send(ctx context.Context, out chan<- string, frame string) bool {
	tok := strings.TrimSpace(frame)
	if tok == "" {
		return true
	}
	select {
	case out <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}

// popFrame cuts the first CR/LF-terminated frame off buf, consuming any run
// of terminators after it.
func popFrame(buf string) (frame, rest string, ok bool) {
	idx := strings.IndexAny(buf, "\r\n")
	if idx < 0 {
		return "", buf, false
	}

	frame = buf[:idx]
	j := idx
	for j < len(buf) {
		if buf[j] != '\r' && buf[j] != '\n' {
			break
		}
		j++
	}
	return frame, buf[j:], true
}

func appendRaw(pending, chunk string, max int) string {
	pending += chunk
	if len(pending) > max {
		pending = pending[len(pending)-max:]
	}
	return pending
}
