package server

import "testing"

func TestLifecycle_Transitions(t *testing.T) {
	t.Run("initialize path", func(t *testing.T) {
		l := newLifecycle()

		if l.current() != StateUninitialized {
			t.Fatalf("initial state = %s, want uninitialized", l.current())
		}
		if err := l.beginInitialize(); err != nil {
			t.Fatalf("beginInitialize: %v", err)
		}
		if l.current() != StateInitializing {
			t.Errorf("state = %s, want initializing", l.current())
		}
		if err := l.completeInitialize(); err != nil {
			t.Fatalf("completeInitialize: %v", err)
		}
		if l.current() != StateReady {
			t.Errorf("state = %s, want ready", l.current())
		}
	})

	t.Run("repeat initialize is rejected", func(t *testing.T) {
		l := newLifecycle()
		if err := l.beginInitialize(); err != nil {
			t.Fatalf("beginInitialize: %v", err)
		}

		if err := l.beginInitialize(); err == nil {
			t.Error("expected error for initialize while initializing")
		}

		if err := l.completeInitialize(); err != nil {
			t.Fatalf("completeInitialize: %v", err)
		}
		if err := l.beginInitialize(); err == nil {
			t.Error("expected error for initialize while ready")
		}
	})

	t.Run("complete requires initializing", func(t *testing.T) {
		l := newLifecycle()
		if err := l.completeInitialize(); err == nil {
			t.Error("expected error completing from uninitialized")
		}
	})

	t.Run("states never regress", func(t *testing.T) {
		l := newLifecycle()
		l.beginShutdown()
		if l.current() != StateShuttingDown {
			t.Fatalf("state = %s, want shutting-down", l.current())
		}

		if err := l.beginInitialize(); err == nil {
			t.Error("expected error initializing after shutdown began")
		}

		l.close()
		if l.current() != StateClosed {
			t.Errorf("state = %s, want closed", l.current())
		}

		// Shutdown after close must not move the state backwards.
		l.beginShutdown()
		if l.current() != StateClosed {
			t.Errorf("state = %s after late beginShutdown, want closed", l.current())
		}
	})

	t.Run("repeat shutdown is a no-op", func(t *testing.T) {
		l := newLifecycle()
		l.beginShutdown()
		l.beginShutdown()
		if l.current() != StateShuttingDown {
			t.Errorf("state = %s, want shutting-down", l.current())
		}
	})
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateInitializing, "initializing"},
		{StateReady, "ready"},
		{StateShuttingDown, "shutting-down"},
		{StateClosed, "closed"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
