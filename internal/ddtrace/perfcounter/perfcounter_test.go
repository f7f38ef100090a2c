package perfcounter

import (
	"testing"

	"github.com/kolkov/ddtrace/internal/ddtrace/record"
)

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Cycles:          "cycles",
		L3Reference:     "l3_reference",
		L3Miss:          "l3_miss",
		L2EvictionClean: "l2_eviction_clean",
		L2EvictionDirty: "l2_eviction_dirty",
		Kind(99):        "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestLookupEventKnownKinds(t *testing.T) {
	for _, k := range []Kind{Cycles, L3Reference, L3Miss, L2EvictionClean, L2EvictionDirty} {
		if _, ok := lookupEvent(k); !ok {
			t.Errorf("lookupEvent(%s) ok = false, want true", k)
		}
	}
}

func TestLookupEventUnknownKind(t *testing.T) {
	if _, ok := lookupEvent(Kind(99)); ok {
		t.Errorf("lookupEvent(unknown) ok = true, want false")
	}
}

func TestOpenKernelModuleUnavailable(t *testing.T) {
	h, err := Open(Cycles, ExclusionFlags{}, BackendKernelModule)
	if err != ErrBackendUnavailable {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
	if h != nil {
		t.Errorf("handle = %v, want nil", h)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Cycles, ExclusionFlags{}, Backend(99)); err == nil {
		t.Errorf("Open with unknown backend: got nil error, want error")
	}
}

func TestKindCounterType(t *testing.T) {
	cases := map[Kind]record.CounterType{
		Cycles:          record.UserspaceCycles,
		L3Reference:     record.L3Reference,
		L3Miss:          record.L3Miss,
		L2EvictionClean: record.Invalid,
		L2EvictionDirty: record.Invalid,
		Kind(99):        record.Invalid,
	}
	for k, want := range cases {
		if got := k.CounterType(); got != want {
			t.Errorf("Kind(%s).CounterType() = %v, want %v", k, got, want)
		}
	}
}
