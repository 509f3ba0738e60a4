package circuit

import "testing"

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(WithFailureThreshold(3))

	if tripped := b.RecordFailure(); tripped {
		t.Fatal("tripped too early")
	}
	b.RecordFailure()
	if tripped := b.RecordFailure(); !tripped {
		t.Fatal("expected circuit to trip on third failure")
	}
	if b.State() != StateOpen {
		t.Fatal("expected open state")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	if tripped := b.RecordFailure(); tripped {
		t.Fatal("failure count should have been reset by success")
	}
}

func TestBreaker_ProbesWhileOpen(t *testing.T) {
	b := New(WithFailureThreshold(1), WithProbeInterval(3))
	b.RecordFailure()

	allowed := 0
	for i := 0; i < 9; i++ {
		if b.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected 3 probes through an open circuit, got %d", allowed)
	}
}

func TestBreaker_ClosesAfterSuccesses(t *testing.T) {
	b := New(WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	b.RecordSuccess()
	if closed := b.RecordSuccess(); !closed {
		t.Fatal("expected circuit to close after two successes")
	}
	if b.State() != StateClosed {
		t.Fatal("expected closed state")
	}
	if !b.Allow() {
		t.Fatal("closed circuit must allow calls")
	}
}
