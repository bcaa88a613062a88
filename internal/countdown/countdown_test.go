package countdown

import "testing"

func TestCountdown_CompletesAfterAllTicks(t *testing.T) {
	c := New(DefaultTicks)
	if c.State() != Idle || c.Unlocked() {
		t.Fatalf("expected idle and locked")
	}

	c.Start()
	for i := 1; i < DefaultTicks; i++ {
		remaining, completed := c.Tick()
		if completed {
			t.Fatalf("completed early at tick %d", i)
		}
		if remaining != DefaultTicks-i {
			t.Fatalf("tick %d: expected %d remaining, got %d", i, DefaultTicks-i, remaining)
		}
		if c.Unlocked() {
			t.Fatalf("unlocked before completion at tick %d", i)
		}
	}

	remaining, completed := c.Tick()
	if !completed || remaining != 0 {
		t.Fatalf("expected completion on final tick, got remaining=%d completed=%v", remaining, completed)
	}
	if !c.Unlocked() || c.State() != Complete {
		t.Fatalf("expected complete and unlocked, got %s", c.State())
	}

	if _, completed := c.Tick(); completed {
		t.Fatalf("expected extra tick to be ignored")
	}
}

func TestCountdown_CancelForfeitsAndRestartResets(t *testing.T) {
	c := New(3)
	c.Start()
	c.Tick()
	c.Cancel()
	if c.State() != Cancelled || c.Unlocked() {
		t.Fatalf("expected cancelled and locked, got %s", c.State())
	}
	if _, completed := c.Tick(); completed {
		t.Fatalf("expected tick after cancel to be ignored")
	}

	c.Start()
	if c.State() != Running || c.Remaining() != 3 {
		t.Fatalf("expected restart from full length, got %s/%d", c.State(), c.Remaining())
	}
}

func TestCountdown_CancelIdleIsNoop(t *testing.T) {
	c := New(0)
	c.Cancel()
	if c.State() != Idle {
		t.Fatalf("expected idle, got %s", c.State())
	}
	c.Start()
	if c.Remaining() != DefaultTicks {
		t.Fatalf("expected default length, got %d", c.Remaining())
	}
}
