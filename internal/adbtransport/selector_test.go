package adbtransport

import (
	"testing"
	"time"
)

func TestSelector_AlternatesUntilEnoughSamples(t *testing.T) {
	sel := NewSelector(BackendSubprocess, BackendPersistentShell)

	seen := make(map[BackendKind]int)
	for i := 0; i < minSamplesBeforeSelecting*2; i++ {
		kind := sel.Pick("cid-1", FamilyShell)
		seen[kind]++
		sel.Record("cid-1", FamilyShell, kind, 10*time.Millisecond)
	}

	if seen[BackendSubprocess] == 0 || seen[BackendPersistentShell] == 0 {
		t.Errorf("expected round-robin to try both backends, got %v", seen)
	}
}

func TestSelector_PrefersFasterBackend(t *testing.T) {
	sel := NewSelector(BackendSubprocess, BackendPersistentShell)

	for i := 0; i < minSamplesBeforeSelecting; i++ {
		sel.Record("cid-1", FamilyShell, BackendSubprocess, 100*time.Millisecond)
		sel.Record("cid-1", FamilyShell, BackendPersistentShell, 10*time.Millisecond)
	}

	got := sel.Pick("cid-1", FamilyShell)
	if got != BackendPersistentShell {
		t.Errorf("Pick() = %v, want %v (faster backend)", got, BackendPersistentShell)
	}
}

func TestSelector_HysteresisPreventsFlapOnMarginalDifference(t *testing.T) {
	sel := NewSelector(BackendSubprocess, BackendPersistentShell)

	for i := 0; i < minSamplesBeforeSelecting; i++ {
		sel.Record("cid-1", FamilyShell, BackendSubprocess, 100*time.Millisecond)
		sel.Record("cid-1", FamilyShell, BackendPersistentShell, 98*time.Millisecond)
	}

	// 98ms vs 100ms is under the 10% hysteresis margin - selector should
	// keep whichever backend it picked first rather than flapping.
	key := deviceFamilyKey{cid: "cid-1", family: FamilyShell}
	se := sel.series[key]
	if se.preferred == "" {
		t.Fatal("expected a preferred backend to have been selected")
	}
	initial := se.preferred

	sel.Record("cid-1", FamilyShell, BackendPersistentShell, 97*time.Millisecond)
	if se.preferred != initial {
		t.Errorf("expected preferred backend to stay %v, got %v", initial, se.preferred)
	}
}

func TestSelector_SingleCandidateShortCircuits(t *testing.T) {
	sel := NewSelector(BackendSubprocess)
	got := sel.Pick("cid-1", FamilyShell)
	if got != BackendSubprocess {
		t.Errorf("Pick() = %v, want %v", got, BackendSubprocess)
	}
}

func TestSelector_PeriodicallyProbesAlternative(t *testing.T) {
	sel := NewSelector(BackendSubprocess, BackendPersistentShell)

	for i := 0; i < minSamplesBeforeSelecting; i++ {
		sel.Record("cid-1", FamilyShell, BackendSubprocess, 100*time.Millisecond)
		sel.Record("cid-1", FamilyShell, BackendPersistentShell, 10*time.Millisecond)
	}

	sawProbe := false
	for i := 0; i < probeEveryNOps+1; i++ {
		if sel.Pick("cid-1", FamilyShell) == BackendSubprocess {
			sawProbe = true
		}
	}
	if !sawProbe {
		t.Error("expected selector to probe the slower backend periodically")
	}
}
