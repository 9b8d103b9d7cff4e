package relay

import (
	"errors"
	"testing"

	"github.com/sweeney/tank-monitor/internal/logic"
)

func TestFakeDriverSetGet(t *testing.T) {
	f := NewFakeDriver()
	if s, _ := f.Get(logic.ChannelOverride); s != logic.StateOff {
		t.Errorf("initial state: got %s, want OFF", s)
	}
	if err := f.Set(logic.ChannelOverride, logic.StateOn); err != nil {
		t.Fatal(err)
	}
	if s, _ := f.Get(logic.ChannelOverride); s != logic.StateOn {
		t.Errorf("after set: got %s, want ON", s)
	}
	if got := f.WritesTo(logic.ChannelOverride); len(got) != 1 || got[0] != logic.StateOn {
		t.Errorf("writes: %v", got)
	}
}

func TestFakeDriverSetError(t *testing.T) {
	f := NewFakeDriver()
	f.SetError = errors.New("i2c nak")
	if err := f.Set(logic.ChannelBypass, logic.StateOn); err == nil {
		t.Fatal("expected error")
	}
	if s, _ := f.Get(logic.ChannelBypass); s != logic.StateOff {
		t.Error("failed write must not change state")
	}
	if len(f.Writes()) != 0 {
		t.Error("failed write must not be recorded")
	}
}
