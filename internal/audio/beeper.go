package audio

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tone is one beep.
type Tone struct {
	Name     string
	FreqHz   int
	Duration time.Duration
}

var (
	ToneSuccess = Tone{Name: "success", FreqHz: 800, Duration: 200 * time.Millisecond}
	ToneWarning = Tone{Name: "warning", FreqHz: 500, Duration: 400 * time.Millisecond}
	ToneAlarm   = Tone{Name: "alarm", FreqHz: 300, Duration: 800 * time.Millisecond}
)

const defaultAlarmInterval = time.Second

// Beeper writes tone frames (BEL followed by a descriptor line) to a
// terminal or tone generator. Writes happen on a background goroutine so
// callers never block on the device.
type Beeper struct {
	out      io.Writer
	interval time.Duration

	frames chan Tone
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	alarmStop chan struct{}
}

// NewBeeper starts the writer goroutine; call Close to stop it.
func NewBeeper(out io.Writer, alarmInterval time.Duration) *Beeper {
	if alarmInterval <= 0 {
		alarmInterval = defaultAlarmInterval
	}
	b := &Beeper{
		out:      out,
		interval: alarmInterval,
		frames:   make(chan Tone, 8),
		done:     make(chan struct{}),
	}
	go b.writeLoop()
	return b
}

func (b *Beeper) writeLoop() {
	for {
		select {
		case <-b.done:
			return
		case t := <-b.frames:
			_, _ = fmt.Fprintf(b.out, "\a[tone %s %dHz %dms]\n", t.Name, t.FreqHz, t.Duration.Milliseconds())
		}
	}
}

// emit drops the frame when the device is backed up.
func (b *Beeper) emit(t Tone) {
	select {
	case b.frames <- t:
	default:
	}
}

func (b *Beeper) PlaySuccess() { b.emit(ToneSuccess) }
func (b *Beeper) PlayWarning() { b.emit(ToneWarning) }

// PlayError starts the repeating alarm. It keeps sounding until StopAlarm.
func (b *Beeper) PlayError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alarmStop != nil {
		return
	}
	stop := make(chan struct{})
	b.alarmStop = stop

	go func() {
		t := time.NewTicker(b.interval)
		defer t.Stop()
		b.emit(ToneAlarm)
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				b.emit(ToneAlarm)
			}
		}
	}()
}

func (b *Beeper) StopAlarm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alarmStop != nil {
		close(b.alarmStop)
		b.alarmStop = nil
	}
}

// Alarming reports whether the alarm is running.
func (b *Beeper) Alarming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alarmStop != nil
}

// Close stops the alarm and the writer goroutine.
func (b *Beeper) Close() {
	b.StopAlarm()
	b.once.Do(func() { close(b.done) })
}

// Muted is the player used when audio is disabled.
type Muted struct{}

func (Muted) PlaySuccess() {}
func (Muted) PlayWarning() {}
func (Muted) PlayError()   {}
func (Muted) StopAlarm()   {}
