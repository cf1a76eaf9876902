package extract

import "testing"

func TestDetectorPagedConvergence(t *testing.T) {
	// Pages of 20, 20, 20, 0 new items: converged after the 4th read.
	d := NewDetector(1, 50)

	totals := []int{20, 40, 60, 60}
	for i, total := range totals[:3] {
		if d.Observe(total, true) {
			t.Fatalf("converged prematurely at iteration %d", i+1)
		}
	}
	if !d.Observe(totals[3], true) {
		t.Fatalf("expected convergence on the stable 4th iteration")
	}
	if got := d.State().Attempts; got != 4 {
		t.Fatalf("attempts = %d, want 4", got)
	}
	if got := d.State().SeenCount; got != 60 {
		t.Fatalf("seen count = %d, want 60", got)
	}
}

func TestDetectorAdapterEndSignal(t *testing.T) {
	d := NewDetector(5, 50)
	if d.Observe(10, true) {
		t.Fatalf("should not converge while content remains")
	}
	// The adapter reporting no more reachable content ends the loop even
	// though the count is not yet stable.
	if !d.Observe(30, false) {
		t.Fatalf("adapter end-of-content signal must stop the loop")
	}
}

func TestDetectorTerminatesAtCap(t *testing.T) {
	// A site that never stops reporting new items must still terminate.
	d := NewDetector(20, 30)

	iterations := 0
	total := 0
	for {
		iterations++
		total += 10
		if d.Observe(total, true) {
			break
		}
		if iterations > 1000 {
			t.Fatalf("detector failed to terminate")
		}
	}
	if iterations != 30 {
		t.Fatalf("iterations = %d, want cap of 30", iterations)
	}
	if !d.Exhausted() {
		t.Fatalf("cap stop must report exhaustion")
	}
}

func TestDetectorConvergenceAtCapNotExhausted(t *testing.T) {
	// Stopping on a convergence signal that happens to land on the cap
	// iteration is a clean stop, not a cap hit.
	t.Run("end signal", func(t *testing.T) {
		d := NewDetector(20, 3)
		if d.Observe(10, true) || d.Observe(20, true) {
			t.Fatalf("converged prematurely")
		}
		if !d.Observe(30, false) {
			t.Fatalf("adapter end-of-content signal must stop the loop")
		}
		if d.Exhausted() {
			t.Fatalf("end-of-content stop must not report exhaustion")
		}
	})
	t.Run("stable count", func(t *testing.T) {
		d := NewDetector(1, 2)
		if d.Observe(10, true) {
			t.Fatalf("converged prematurely")
		}
		if !d.Observe(10, true) {
			t.Fatalf("expected convergence on the stable read")
		}
		if d.Exhausted() {
			t.Fatalf("stability stop must not report exhaustion")
		}
	})
}

func TestDetectorScrollNoiseTolerance(t *testing.T) {
	// Scroll portals need several stable reads before trusting the count.
	d := NewDetector(3, 50)

	if d.Observe(40, true) {
		t.Fatalf("unexpected convergence on first read")
	}
	if d.Observe(40, true) {
		t.Fatalf("stable=1, threshold=3: must continue")
	}
	if d.Observe(40, true) {
		t.Fatalf("stable=2, threshold=3: must continue")
	}
	// A late-loading batch resets stability.
	if d.Observe(55, true) {
		t.Fatalf("new items must reset the stability window")
	}
	if d.Observe(55, true) || d.Observe(55, true) {
		t.Fatalf("stability window must rebuild from zero")
	}
	if !d.Observe(55, true) {
		t.Fatalf("expected convergence after 3 stable reads")
	}
}
