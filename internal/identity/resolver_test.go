package identity

import (
	"context"
	"testing"
	"time"
)

// fakeRepository is an in-memory Repository for tests.
type fakeRepository struct {
	bySDID map[string]*Record
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{bySDID: make(map[string]*Record)}
}

func (f *fakeRepository) GetBySDID(_ context.Context, sdid string) (*Record, error) {
	rec, ok := f.bySDID[sdid]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.DeepCopy(), nil
}

func (f *fakeRepository) GetByCID(_ context.Context, cid string) (*Record, error) {
	for _, rec := range f.bySDID {
		if rec.CID == cid {
			return rec.DeepCopy(), nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepository) List(_ context.Context) ([]Record, error) {
	var out []Record
	for _, rec := range f.bySDID {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeRepository) Upsert(_ context.Context, rec *Record) error {
	f.bySDID[rec.SDID] = rec.DeepCopy()
	return nil
}

func (f *fakeRepository) Rebind(_ context.Context, sdid, newCID string, seenAt time.Time) error {
	rec, ok := f.bySDID[sdid]
	if !ok {
		return ErrNotFound
	}
	rec.CID = newCID
	rec.LastSeenAt = seenAt
	return nil
}

// fakeProbe lets each test control which fallback tier succeeds.
type fakeProbe struct {
	hardwareSerial string
	bootSerial     string
	adbSerial      string
	androidID      string
	fingerprint    string
	manufacturer   string
	model          string
}

func (p fakeProbe) HardwareSerial(context.Context, string) (string, error)    { return p.hardwareSerial, nil }
func (p fakeProbe) BootSerial(context.Context, string) (string, error)        { return p.bootSerial, nil }
func (p fakeProbe) AdbSerial(context.Context, string) (string, error)         { return p.adbSerial, nil }
func (p fakeProbe) AndroidID(context.Context, string) (string, error)        { return p.androidID, nil }
func (p fakeProbe) BuildFingerprint(context.Context, string) (string, error) { return p.fingerprint, nil }
func (p fakeProbe) ManufacturerModel(context.Context, string) (string, string, error) {
	return p.manufacturer, p.model, nil
}

func TestResolveSerial_FallbackChainPriority(t *testing.T) {
	tests := []struct {
		name  string
		probe fakeProbe
		want  string
	}{
		{
			name:  "hardware serial wins",
			probe: fakeProbe{hardwareSerial: "HW123", bootSerial: "BOOT1", adbSerial: "ADB1"},
			want:  "HW123",
		},
		{
			name:  "falls back to boot serial",
			probe: fakeProbe{bootSerial: "BOOT1", adbSerial: "ADB1"},
			want:  "BOOT1",
		},
		{
			name:  "falls back to adb serial when not an address",
			probe: fakeProbe{adbSerial: "R58M123ABC"},
			want:  "R58M123ABC",
		},
		{
			name:  "rejects adb serial that looks like host:port",
			probe: fakeProbe{adbSerial: "192.168.1.5:5555", androidID: "deadbeef"},
			want:  hashFallback("aid", "deadbeef"),
		},
		{
			name:  "falls back to manufacturer+model hash",
			probe: fakeProbe{manufacturer: "Samsung", model: "SM-G998B"},
			want:  hashFallback("mm", "Samsung_SM-G998B"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewResolver(newFakeRepository(), tt.probe)
			got := resolver.ResolveSerial(context.Background(), "192.168.1.5:5555", false)
			if got != tt.want {
				t.Errorf("ResolveSerial() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSerial_CacheHit(t *testing.T) {
	resolver := NewResolver(newFakeRepository(), fakeProbe{hardwareSerial: "HW1"})
	ctx := context.Background()

	first := resolver.ResolveSerial(ctx, "cid-a", false)
	resolver.probe = fakeProbe{hardwareSerial: "HW2"}
	second := resolver.ResolveSerial(ctx, "cid-a", false)

	if first != second {
		t.Errorf("expected cache hit to return stable sdid, got %q then %q", first, second)
	}
}

func TestResolveSerial_NeverErrors(t *testing.T) {
	resolver := NewResolver(newFakeRepository(), nil)
	got := resolver.ResolveSerial(context.Background(), "cid-with-no-probe", false)
	if got == "" {
		t.Error("expected non-empty sdid even with no probe configured")
	}
}

func TestResolveSerial_MigrationFiresOnNewCID(t *testing.T) {
	repo := newFakeRepository()
	resolver := NewResolver(repo, fakeProbe{hardwareSerial: "HW1"})
	ctx := context.Background()

	var migrated []string
	resolver.OnMigration(func(sdid, oldCID, newCID string) {
		migrated = append(migrated, sdid, oldCID, newCID)
	})

	resolver.ResolveSerial(ctx, "192.168.1.5:5555", false)
	resolver.ResolveSerial(ctx, "192.168.1.5:6001", true)

	if len(migrated) != 3 {
		t.Fatalf("expected migration callback to fire once with 3 args, got %v", migrated)
	}
	if migrated[0] != "HW1" || migrated[1] != "192.168.1.5:5555" || migrated[2] != "192.168.1.5:6001" {
		t.Errorf("unexpected migration args: %v", migrated)
	}
}

func TestSanitizeForFile(t *testing.T) {
	got := SanitizeForFile("192.168.1.12:5555")
	want := "192.168.1.12_5555"
	if got != want {
		t.Errorf("SanitizeForFile() = %q, want %q", got, want)
	}
}

func TestLooksLikeAddress(t *testing.T) {
	cases := map[string]bool{
		"192.168.1.5:5555": true,
		"R58M123ABC":        false,
		"":                  false,
		"host:notaport":     false,
	}
	for input, want := range cases {
		if got := looksLikeAddress(input); got != want {
			t.Errorf("looksLikeAddress(%q) = %v, want %v", input, got, want)
		}
	}
}
