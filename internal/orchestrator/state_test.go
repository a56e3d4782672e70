package orchestrator

import "testing"

var happyPath = []State{StateSplitting, StateSynthesizing, StateAssembling, StateWriting, StateDone}

// advanceTo 沿正常流程推进到目标状态。
func advanceTo(t *testing.T, sm *StateMachine, target State) {
	t.Helper()
	if target == StateIdle {
		return
	}
	if target == StateFailed {
		if !sm.Transition(StateSplitting) || !sm.Transition(StateFailed) {
			t.Fatalf("failed to advance to %s", target)
		}
		return
	}
	for _, s := range happyPath {
		if !sm.Transition(s) {
			t.Fatalf("failed to advance to %s", s)
		}
		if s == target {
			return
		}
	}
}

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected initial state Idle, got %s", sm.Current())
	}
}

func TestStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateSplitting},
		{StateSplitting, StateSynthesizing},
		{StateSynthesizing, StateAssembling},
		{StateAssembling, StateWriting},
		{StateWriting, StateDone},
		{StateDone, StateIdle},
		{StateFailed, StateIdle},
		{StateSplitting, StateFailed},
		{StateSynthesizing, StateFailed},
		{StateAssembling, StateFailed},
		{StateWriting, StateFailed},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if !sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be valid", tt.from, tt.to)
		}
		if sm.Current() != tt.to {
			t.Errorf("expected state %s, got %s", tt.to, sm.Current())
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateSynthesizing},
		{StateIdle, StateFailed},
		{StateIdle, StateDone},
		{StateSplitting, StateWriting},
		{StateSynthesizing, StateSynthesizing},
		{StateWriting, StateAssembling},
		{StateDone, StateFailed},
		{StateDone, StateSplitting},
		{StateFailed, StateFailed},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should remain %s after invalid transition, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_OnChangeCallback(t *testing.T) {
	sm := NewStateMachine()

	var got [][2]State
	sm.SetOnChange(func(from, to State) {
		got = append(got, [2]State{from, to})
	})

	sm.Transition(StateSplitting)
	sm.Transition(StateFailed)
	sm.Reset()

	want := [][2]State{
		{StateIdle, StateSplitting},
		{StateSplitting, StateFailed},
		{StateFailed, StateIdle},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d callbacks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("callback %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestStateMachine_ResetFromIdleNoCallback(t *testing.T) {
	sm := NewStateMachine()
	called := false
	sm.SetOnChange(func(from, to State) { called = true })

	sm.Reset()
	if called {
		t.Error("Reset from Idle should not trigger callback")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "Idle"},
		{StateSynthesizing, "Synthesizing"},
		{StateFailed, "Failed"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
