package progress

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jvreagan/static-pages-deploy/pkg/types"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name  string
		sent  uint64
		total uint64
		want  int
	}{
		{name: "nothing sent", sent: 0, total: 1000, want: 0},
		{name: "floor not round", sent: 999, total: 1000, want: 99},
		{name: "half", sent: 512, total: 1024, want: 50},
		{name: "complete", sent: 1000, total: 1000, want: 100},
		{name: "sent exceeds total", sent: 2000, total: 1000, want: 100},
		{name: "zero total treated as one", sent: 0, total: 0, want: 0},
		{name: "zero total with bytes sent", sent: 10, total: 0, want: 100},
		{name: "huge values", sent: math.MaxUint64 / 2, total: math.MaxUint64, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percent(types.UploadProgress{BytesSent: tt.sent, BytesTotal: tt.total})
			if got != tt.want {
				t.Errorf("Percent(%d, %d) = %d, want %d", tt.sent, tt.total, got, tt.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		sent    uint64
		total   uint64
		want    time.Duration
	}{
		{name: "no bytes yet", elapsed: time.Second, sent: 0, total: 100, want: -1},
		{name: "no time elapsed", elapsed: 0, sent: 10, total: 100, want: -1},
		{name: "quarter in one second", elapsed: time.Second, sent: 25, total: 100, want: 3 * time.Second},
		{name: "half in two seconds", elapsed: 2 * time.Second, sent: 50, total: 100, want: 2 * time.Second},
		{name: "done", elapsed: 5 * time.Second, sent: 100, total: 100, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ETA(tt.elapsed, types.UploadProgress{BytesSent: tt.sent, BytesTotal: tt.total})
			if got != tt.want {
				t.Errorf("ETA() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	p := types.UploadProgress{BytesSent: 250, BytesTotal: 1000}
	got := Format(p, 25, 3*time.Second, 20)
	want := "Uploading [=====---------------] 25% | ETA: 3s | 250/1000"
	if got != want {
		t.Errorf("Format() =\n%q\nwant\n%q", got, want)
	}

	got = Format(types.UploadProgress{BytesTotal: 10}, 0, -1, 4)
	want = "Uploading [----] 0% | ETA: - | 0/10"
	if got != want {
		t.Errorf("Format() unknown ETA =\n%q\nwant\n%q", got, want)
	}
}

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestBar(out *bytes.Buffer, interactive bool) *Bar {
	clock := &fakeClock{t: time.Unix(0, 0), step: 300 * time.Millisecond}
	b := NewBar(out)
	b.interactive = interactive
	b.now = clock.now
	return b
}

func TestBarInteractiveRedrawsInPlace(t *testing.T) {
	var out bytes.Buffer
	b := newTestBar(&out, true)

	for _, sent := range []uint64{0, 100, 500, 1000} {
		b.Update(types.UploadProgress{BytesSent: sent, BytesTotal: 1000})
	}
	b.Finish()

	s := out.String()
	if strings.Count(s, "\n") != 1 || !strings.HasSuffix(s, "\n") {
		t.Errorf("Expected exactly one trailing newline, got %q", s)
	}
	if strings.Count(s, "\r") < 4 {
		t.Errorf("Expected a carriage return per redraw, got %q", s)
	}
	if !strings.Contains(s, "100% | ETA: 0s | 1000/1000") {
		t.Errorf("Expected final 100%% line, got %q", s)
	}
	if b.Percent() != 100 {
		t.Errorf("Percent() = %d, want 100", b.Percent())
	}
}

func TestBarMonotonic(t *testing.T) {
	var out bytes.Buffer
	b := newTestBar(&out, true)

	events := []types.UploadProgress{
		{BytesSent: 600, BytesTotal: 1000},
		// a transport that re-reports a smaller value must not move the bar back
		{BytesSent: 300, BytesTotal: 1000},
		{BytesSent: 700, BytesTotal: 1000},
		{BytesSent: 700, BytesTotal: 2000},
	}

	prev := 0
	for _, e := range events {
		b.Update(e)
		if got := b.Percent(); got < prev {
			t.Fatalf("Percent decreased from %d to %d", prev, got)
		} else {
			prev = got
		}
	}
	if prev != 70 {
		t.Errorf("Expected percent to hold at 70, got %d", prev)
	}
}

func TestBarNonInteractive(t *testing.T) {
	var out bytes.Buffer
	b := newTestBar(&out, false)

	for sent := uint64(0); sent <= 1000; sent += 50 {
		b.Update(types.UploadProgress{BytesSent: sent, BytesTotal: 1000})
	}
	b.Finish()

	s := out.String()
	if strings.Contains(s, "\r") {
		t.Errorf("Non-interactive output must not contain carriage returns: %q", s)
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	if len(lines) != 11 {
		t.Errorf("Expected one line per tenth (11), got %d:\n%s", len(lines), s)
	}
	if !strings.Contains(lines[len(lines)-1], "100%") {
		t.Errorf("Expected last line at 100%%, got %q", lines[len(lines)-1])
	}
}

func TestBarFinish(t *testing.T) {
	t.Run("idempotent and stops updates", func(t *testing.T) {
		var out bytes.Buffer
		b := newTestBar(&out, true)
		b.Update(types.UploadProgress{BytesSent: 10, BytesTotal: 100})
		b.Finish()
		b.Finish()
		before := out.String()
		b.Update(types.UploadProgress{BytesSent: 90, BytesTotal: 100})
		if out.String() != before {
			t.Errorf("Update after Finish wrote output: %q", strings.TrimPrefix(out.String(), before))
		}
		if strings.Count(before, "\n") != 1 {
			t.Errorf("Expected a single newline after repeated Finish, got %q", before)
		}
	})

	t.Run("nothing drawn", func(t *testing.T) {
		var out bytes.Buffer
		b := newTestBar(&out, true)
		b.Finish()
		if out.Len() != 0 {
			t.Errorf("Expected no output when nothing was drawn, got %q", out.String())
		}
	})
}
