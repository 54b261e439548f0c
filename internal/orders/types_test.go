package orders

import "testing"

func TestCanTransition_HappyPath(t *testing.T) {
	path := []string{
		StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("%s -> %s must be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_CancellationWindow(t *testing.T) {
	for _, from := range []string{StatusPending, StatusConfirmed, StatusProcessing} {
		if !CanTransition(from, StatusCancelled) {
			t.Fatalf("%s must be cancellable", from)
		}
		if !CanTransition(from, StatusRefunded) {
			t.Fatalf("%s must be refundable", from)
		}
	}
	// once shipped, the order can only move forward
	for _, from := range []string{StatusShipped, StatusDelivered, StatusCompleted} {
		if CanTransition(from, StatusCancelled) {
			t.Fatalf("%s must not be cancellable", from)
		}
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	for _, terminal := range []string{StatusCompleted, StatusCancelled, StatusRefunded} {
		for _, to := range []string{StatusPending, StatusConfirmed, StatusShipped} {
			if CanTransition(terminal, to) {
				t.Fatalf("%s is terminal, %s -> %s must be illegal", terminal, terminal, to)
			}
		}
	}
}

func TestCanTransition_NoSkippingStages(t *testing.T) {
	if CanTransition(StatusPending, StatusShipped) {
		t.Fatal("PENDING -> SHIPPED skips confirmation and processing")
	}
	if CanTransition(StatusConfirmed, StatusDelivered) {
		t.Fatal("CONFIRMED -> DELIVERED skips shipping")
	}
}

func TestIsValidStatus_AcceptsLegacyAliases(t *testing.T) {
	for _, s := range []string{StatusPaid, StatusFulfilling, StatusDisputed} {
		if !IsValidStatus(s) {
			t.Fatalf("legacy status %s must stay valid", s)
		}
	}
	if IsValidStatus("SHOUTING") {
		t.Fatal("unknown status must be rejected")
	}
}

func TestCanTransition_LegacyAliasesAreInert(t *testing.T) {
	for _, legacy := range []string{StatusPaid, StatusFulfilling, StatusDisputed} {
		if CanTransition(legacy, StatusConfirmed) {
			t.Fatalf("nothing transitions out of legacy status %s", legacy)
		}
		if CanTransition(StatusPending, legacy) {
			t.Fatalf("nothing transitions into legacy status %s", legacy)
		}
	}
}
