package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scryerhq/scryer-core/internal/identity"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver is the subset of identity.Resolver the store needs to chase a
// CID back to its bound SDID when a caller hands in a connection ID instead
// of a stable device ID.
type Resolver interface {
	List(ctx context.Context) ([]identity.Record, error)
}

// Store holds the per-device JSON caches for sensors, actions and flows. A
// single Store instance is shared process-wide; each record kind keeps its
// own device-scoped in-memory cache, loaded lazily from disk on first
// access and kept in sync by write-then-cache mutating operations.
type Store struct {
	dataDir  string
	resolver Resolver
	logger   Logger

	sensors   *sensorCache
	actions   *actionCache
	flows     *flowCache
	templates *templateCatalog
	bundles   *bundleCatalog
}

// NewStore creates a Store rooted at dataDir (typically Config.DataDir).
// resolver is used by the lookup-by-any-ID-variant chain; it may be nil,
// in which case only direct SDID lookups and whole-store scans work.
func NewStore(dataDir string, resolver Resolver) *Store {
	return &Store{
		dataDir:   dataDir,
		resolver:  resolver,
		logger:    noopLogger{},
		sensors:   newSensorCache(),
		actions:   newActionCache(),
		flows:     newFlowCache(),
		templates: &templateCatalog{builtin: loadBuiltinTemplates()},
		bundles:   &bundleCatalog{builtin: loadBuiltinBundles()},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

func (s *Store) devicePath(kind, sdid string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", kind, identity.SanitizeForFile(sdid)))
}

// writeJSONAtomic marshals v and writes it to path by writing to a sibling
// temp file first, then renaming over the destination. The rename is
// atomic on POSIX filesystems, so a reader never observes a partially
// written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// readJSONFile unmarshals path into v. A missing file is not an error; v is
// left at its zero value and ok is false.
func readJSONFile(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// resolveSDID implements the lookup-by-any-ID-variant chain: a direct SDID
// (caller already knows the stable ID), then an indirect lookup via the
// Identity Resolver's registry (anyID is a CID, or a stale SDID it still
// remembers), then finally a whole-store scan across every on-disk file of
// kind looking for a stable_device_id field matching anyID. The final tier
// only helps if the registry itself has lost track of the device but its
// data files are still present on disk under their original name.
func (s *Store) resolveSDID(ctx context.Context, kind, anyID string) (string, bool) {
	if anyID == "" {
		return "", false
	}

	if _, err := os.Stat(s.devicePath(kind, anyID)); err == nil {
		return anyID, true
	}

	if s.resolver != nil {
		if records, err := s.resolver.List(ctx); err == nil {
			for _, rec := range records {
				if rec.SDID == anyID || rec.CID == anyID {
					return rec.SDID, true
				}
			}
		}
	}

	if sdid, ok := s.scanForStableDeviceID(kind, anyID); ok {
		return sdid, true
	}

	return "", false
}

// scanForStableDeviceID walks every "{kind}_*.json" file in the store
// directory and returns the SDID of the first one whose top-level
// stable_device_id field matches anyID.
func (s *Store) scanForStableDeviceID(kind, anyID string) (string, bool) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return "", false
	}

	prefix := kind + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}

		var probe struct {
			StableDeviceID string `json:"stable_device_id"`
		}
		data, err := os.ReadFile(filepath.Join(s.dataDir, name))
		if err != nil {
			continue
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			continue
		}
		if probe.StableDeviceID == anyID {
			return probe.StableDeviceID, true
		}
	}
	return "", false
}

// deviceFileMu guards lazy-load-then-populate races per device file across
// all three caches; a single mutex is enough since loads are cheap and rare
// once warm.
var deviceFileMu sync.Mutex
