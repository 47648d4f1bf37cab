package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newCenter() (*Center, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(Options{Now: clock.Now}), clock
}

func TestBannerExpiry(t *testing.T) {
	c, clock := newCenter()
	errB := c.Post(KindError, "scanner jammed")
	infoB := c.Post(KindInfo, "workflow saved")

	if _, err := uuid.Parse(errB.ID); err != nil {
		t.Errorf("banner id %q is not a uuid: %v", errB.ID, err)
	}
	if errB.ID == infoB.ID {
		t.Error("banner ids collide")
	}

	clock.Advance(2999 * time.Millisecond)
	if got := len(c.Active()); got != 2 {
		t.Fatalf("Active() at 2.999s = %d banners, want 2", got)
	}

	clock.Advance(time.Millisecond)
	active := c.Active()
	if len(active) != 1 || active[0].ID != errB.ID {
		t.Fatalf("Active() at 3s = %+v, want only the error banner", active)
	}

	clock.Advance(2 * time.Second)
	if got := len(c.Active()); got != 0 {
		t.Errorf("Active() at 5s = %d banners, want 0", got)
	}
}

func TestCustomTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(Options{ErrorTTL: time.Second, InfoTTL: 10 * time.Second, Now: clock.Now})
	c.Error("e")
	c.Info("i")

	clock.Advance(time.Second)
	active := c.Active()
	if len(active) != 1 || active[0].Kind != KindInfo {
		t.Errorf("Active() = %+v, want only the info banner", active)
	}
}

func TestDismiss(t *testing.T) {
	c, _ := newCenter()
	b := c.Post(KindError, "x")

	if !c.Dismiss(b.ID) {
		t.Fatal("Dismiss() = false for an active banner")
	}
	if c.Dismiss(b.ID) {
		t.Error("Dismiss() = true for an already dismissed banner")
	}
	if got := len(c.Active()); got != 0 {
		t.Errorf("Active() = %d banners after dismiss, want 0", got)
	}
}

func TestAppFrames(t *testing.T) {
	tests := []struct {
		name     string
		deliver  func(*Center)
		wantKind Kind
		wantMsg  string
		wantNone bool
	}{
		{"log error", func(c *Center) { c.OnLog(protocol.Log{Level: "ERROR", Message: "disk full"}) }, KindError, "disk full", false},
		{"log warning", func(c *Center) { c.OnLog(protocol.Log{Level: "WARNING", Message: "low light"}) }, KindError, "low light", false},
		{"log info", func(c *Center) { c.OnLog(protocol.Log{Level: "INFO", Message: "hello"}) }, 0, "", true},
		{"log debug", func(c *Center) { c.OnLog(protocol.Log{Level: "DEBUG", Message: "x"}) }, 0, "", true},
		{"notification", func(c *Center) { c.OnNotification(protocol.Notification{Message: "Saved"}) }, KindInfo, "Saved", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCenter()
			tt.deliver(c)
			active := c.Active()
			if tt.wantNone {
				if len(active) != 0 {
					t.Errorf("Active() = %+v, want none", active)
				}
				return
			}
			if len(active) != 1 {
				t.Fatalf("Active() = %+v, want one banner", active)
			}
			if active[0].Kind != tt.wantKind || active[0].Message != tt.wantMsg {
				t.Errorf("banner = %s %q, want %s %q", active[0].Kind, active[0].Message, tt.wantKind, tt.wantMsg)
			}
		})
	}
}

func TestReportError(t *testing.T) {
	c, _ := newCenter()
	c.ReportError(nil)
	c.ReportError(apperrors.InvalidMessage("malformed capture_status frame", nil))

	active := c.Active()
	if len(active) != 1 {
		t.Fatalf("Active() = %+v, want one banner", active)
	}
	if active[0].Message != "Protocol error: malformed capture_status frame" {
		t.Errorf("Message = %q", active[0].Message)
	}
}

func TestOnChange(t *testing.T) {
	c, _ := newCenter()
	calls := 0
	unsubscribe := c.OnChange(func() { calls++ })

	b := c.Post(KindInfo, "a")
	c.Dismiss(b.ID)
	unsubscribe()
	c.Post(KindInfo, "b")

	if calls != 2 {
		t.Errorf("observer calls = %d, want 2", calls)
	}
}
