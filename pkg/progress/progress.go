// Package progress renders upload progress as a single terminal line that is
// redrawn in place:
//
//	Uploading [==============----------------] 47% | ETA: 3s | 482133/1024000
//
// When the output is not a terminal, lines are appended at every tenth of
// the upload instead of redrawn.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/jvreagan/static-pages-deploy/pkg/types"
)

const (
	defaultBarWidth = 40
	narrowBarWidth  = 20

	// Minimum interval between redraws when the percentage has not changed
	redrawInterval = 200 * time.Millisecond
)

// Percent returns floor(sent*100/total) clamped to [0, 100].
// A zero total is treated as 1.
func Percent(p types.UploadProgress) int {
	total := p.BytesTotal
	if total == 0 {
		total = 1
	}
	if p.BytesSent >= total {
		return 100
	}
	var pct uint64
	if p.BytesSent > math.MaxUint64/100 {
		pct = p.BytesSent / (total / 100)
	} else {
		pct = p.BytesSent * 100 / total
	}
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}

// ETA extrapolates the time remaining from the average rate so far.
// It returns -1 when no estimate is possible yet.
func ETA(elapsed time.Duration, p types.UploadProgress) time.Duration {
	if p.BytesSent == 0 || elapsed <= 0 {
		return -1
	}
	if p.BytesSent >= p.BytesTotal {
		return 0
	}
	remaining := float64(p.BytesTotal - p.BytesSent)
	rate := float64(p.BytesSent) / elapsed.Seconds()
	return time.Duration(remaining / rate * float64(time.Second))
}

// Format renders one progress line without any terminal control characters.
func Format(p types.UploadProgress, percent int, eta time.Duration, barWidth int) string {
	filled := percent * barWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat("-", barWidth-filled)

	etaText := "-"
	if eta >= 0 {
		etaText = fmt.Sprintf("%ds", int64(math.Ceil(eta.Seconds())))
	}

	return fmt.Sprintf("Uploading [%s] %d%% | ETA: %s | %d/%d",
		bar, percent, etaText, p.BytesSent, p.BytesTotal)
}

// Bar is a progress line bound to one upload. It is safe for concurrent use,
// since HTTP transports report progress from their own goroutine.
type Bar struct {
	mu sync.Mutex

	out         io.Writer
	interactive bool
	width       int
	now         func() time.Time

	start     time.Time
	started   bool
	finished  bool
	percent   int
	lastDraw  time.Time
	lastWidth int
	last      types.UploadProgress
}

// NewBar creates a bar writing to out. Terminal detection and bar width are
// derived from out when it is an *os.File.
func NewBar(out io.Writer) *Bar {
	b := &Bar{
		out:   out,
		width: defaultBarWidth,
		now:   time.Now,
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.interactive = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols < 100 {
			b.width = narrowBarWidth
		}
	}
	return b
}

// Update records a progress event and redraws the line if needed.
// The displayed percentage never decreases. Events after Finish are ignored.
func (b *Bar) Update(p types.UploadProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}
	now := b.now()
	if !b.started {
		b.started = true
		b.start = now
		b.percent = -1
	}

	b.last = p
	percent := Percent(p)
	if percent < b.percent {
		percent = b.percent
	}

	changed := percent != b.percent
	if b.interactive {
		if changed || now.Sub(b.lastDraw) >= redrawInterval {
			b.draw(percent, now)
		}
	} else if changed && (percent/10 != b.percent/10 || b.percent < 0) {
		fmt.Fprintln(b.out, Format(p, percent, ETA(now.Sub(b.start), p), b.width))
	}
	b.percent = percent
}

// Finish stops redrawing and terminates the line so later output starts on a
// fresh line. It is idempotent.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finished {
		return
	}
	b.finished = true
	if b.started && b.interactive {
		fmt.Fprintln(b.out)
	}
}

// Percent returns the highest percentage shown so far, or 0 before the first
// update.
func (b *Bar) Percent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.percent < 0 {
		return 0
	}
	return b.percent
}

func (b *Bar) draw(percent int, now time.Time) {
	line := Format(b.last, percent, ETA(now.Sub(b.start), b.last), b.width)
	// Pad over leftovers from a longer previous line
	pad := ""
	if n := b.lastWidth - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(b.out, "\r%s%s", line, pad)
	b.lastWidth = len(line)
	b.lastDraw = now
}
