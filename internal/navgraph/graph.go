package navgraph

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scryerhq/scryer-core/internal/executor"
)

// Logger is the narrow logging surface Graph uses.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Graph is the concrete, file-persisted implementation of executor.NavGraph.
// One packageGraph is kept per Android app package, loaded lazily from
// "<dataDir>/navigation/<package>.json" and cached in memory.
type Graph struct {
	dataDir string
	logger  Logger

	mu          sync.Mutex
	packages    map[string]*packageGraph
	screenIndex map[string]string // screenID -> package
	sdidPackage map[string]string // sdid -> last-observed package
}

// NewGraph creates a Graph rooted at dataDir, eagerly indexing every
// "navigation/*.json" file already on disk so ShortestPath/HomeScreenID
// work immediately for packages learned in a previous run.
func NewGraph(dataDir string) *Graph {
	g := &Graph{
		dataDir:     dataDir,
		logger:      noopLogger{},
		packages:    make(map[string]*packageGraph),
		screenIndex: make(map[string]string),
		sdidPackage: make(map[string]string),
	}
	g.loadIndex()
	return g
}

// SetLogger overrides the default no-op logger.
func (g *Graph) SetLogger(l Logger) {
	if l != nil {
		g.logger = l
	}
}

func (g *Graph) navDir() string {
	return filepath.Join(g.dataDir, "navigation")
}

func (g *Graph) packagePath(pkg string) string {
	return filepath.Join(g.navDir(), pkg+".json")
}

func (g *Graph) loadIndex() {
	entries, err := os.ReadDir(g.navDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		pkg := strings.TrimSuffix(entry.Name(), ".json")
		pg := g.packageFor(pkg)
		for id := range pg.Screens {
			g.screenIndex[id] = pkg
		}
	}
}

// packageFor returns the cached packageGraph for pkg, loading it from disk
// on first access. Must be called with g.mu held.
func (g *Graph) packageFor(pkg string) *packageGraph {
	if pg, ok := g.packages[pkg]; ok {
		return pg
	}

	pg := newPackageGraph(pkg)
	if ok, err := readJSONFile(g.packagePath(pkg), pg); err != nil {
		g.logger.Warn("navgraph: loading package graph failed", "package", pkg, "error", err)
	} else if !ok {
		// No file yet; pg is a fresh empty graph.
	}
	g.packages[pkg] = pg
	return pg
}

func (g *Graph) savePackage(pg *packageGraph) error {
	return writeJSONAtomic(g.packagePath(pg.Package), pg)
}

// ScreenID derives a stable hash from a package, activity, and landmark set.
// As a side effect it records the package sdid is currently observed in, so
// HomeScreenID(sdid) — which has no screen to reverse-index — knows which
// package's graph to consult.
func (g *Graph) ScreenID(sdid string, obs executor.ScreenObservation) string {
	g.mu.Lock()
	if sdid != "" && obs.Package != "" {
		g.sdidPackage[sdid] = obs.Package
	}
	g.mu.Unlock()
	return hashScreen(obs.Package, obs.Activity, obs.Landmarks)
}

func hashScreen(pkg, activity string, landmarks []string) string {
	sorted := append([]string(nil), landmarks...)
	sort.Strings(sorted)

	h := fnv.New64a()
	h.Write([]byte(pkg))
	h.Write([]byte{0})
	h.Write([]byte(activity))
	for _, l := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RecordObservation upserts the screen obs describes into its package's
// graph. The first screen ever observed for a package is recorded as that
// package's home screen — in practice the screen a launch_app step lands
// on, which is the natural fallback target for smart-navigation recovery.
func (g *Graph) RecordObservation(_ context.Context, sdid string, obs executor.ScreenObservation) error {
	if obs.Package == "" {
		return fmt.Errorf("navgraph: observation has no package")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if sdid != "" {
		g.sdidPackage[sdid] = obs.Package
	}

	pg := g.packageFor(obs.Package)
	id := hashScreen(obs.Package, obs.Activity, obs.Landmarks)

	rec, exists := pg.Screens[id]
	if !exists {
		rec = screenRecord{ScreenID: id, Activity: obs.Activity, Landmarks: obs.Landmarks}
	}
	if pg.HomeScreenID == "" {
		pg.HomeScreenID = id
		rec.IsHome = true
	}
	pg.Screens[id] = rec
	g.screenIndex[id] = obs.Package

	return g.savePackage(pg)
}

// RecordTransition upserts the edge between from and to with the concrete
// replay action transition describes.
func (g *Graph) RecordTransition(_ context.Context, _ string, from, to string, transition executor.NavTransition) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pkg, ok := g.resolvePackage(from, to)
	if !ok {
		return fmt.Errorf("navgraph: recording transition: unknown screen %q or %q", from, to)
	}

	pg := g.packageFor(pkg)
	key := transitionKey(from, to)
	rec := pg.Transitions[key]
	rec.ID = key
	rec.From = from
	rec.To = to
	rec.ActionType = transition.ActionType
	rec.Element = transition.Element
	rec.X, rec.Y, rec.KeyCode = transition.X, transition.Y, transition.KeyCode
	pg.Transitions[key] = rec

	return g.savePackage(pg)
}

// RecordTransitionResult updates an edge's running success/failure counters
// and mean transition time, without altering its replay action. If the edge
// doesn't exist yet (smart navigation is replaying a transition learned in a
// session this Graph hasn't seen), it's created with action_type "observed".
func (g *Graph) RecordTransitionResult(_ context.Context, _ string, from, to string, succeeded bool, elapsed time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pkg, ok := g.resolvePackage(from, to)
	if !ok {
		return fmt.Errorf("navgraph: recording transition result: unknown screen %q or %q", from, to)
	}

	pg := g.packageFor(pkg)
	key := transitionKey(from, to)
	rec, exists := pg.Transitions[key]
	if !exists {
		rec = transitionRecord{ID: key, From: from, To: to, ActionType: "observed"}
	}

	if succeeded {
		rec.SuccessCount++
	} else {
		rec.FailureCount++
	}
	total := rec.SuccessCount + rec.FailureCount
	if total > 0 {
		rec.MeanMs = (rec.MeanMs*int64(total-1) + elapsed.Milliseconds()) / int64(total)
	}
	pg.Transitions[key] = rec

	return g.savePackage(pg)
}

// HomeScreenID returns the home screen of the package sdid was last
// observed in.
func (g *Graph) HomeScreenID(sdid string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pkg, ok := g.sdidPackage[sdid]
	if !ok {
		return "", false
	}
	pg, ok := g.packages[pkg]
	if !ok || pg.HomeScreenID == "" {
		return "", false
	}
	return pg.HomeScreenID, true
}

// ShortestPath returns the transition sequence from fromScreenID to
// targetScreenID within the package either screen was last observed in.
func (g *Graph) ShortestPath(_ context.Context, _ string, fromScreenID, targetScreenID string) ([]executor.NavTransition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pkg, ok := g.resolvePackage(fromScreenID, targetScreenID)
	if !ok {
		return nil, fmt.Errorf("navgraph: unknown screen %q or %q", fromScreenID, targetScreenID)
	}
	pg := g.packageFor(pkg)
	return bfsPath(pg, fromScreenID, targetScreenID)
}

// resolvePackage finds which package's graph a pair of screen IDs belongs
// to, preferring from and falling back to to. Must be called with g.mu held.
func (g *Graph) resolvePackage(from, to string) (string, bool) {
	if pkg, ok := g.screenIndex[from]; ok {
		return pkg, true
	}
	if pkg, ok := g.screenIndex[to]; ok {
		return pkg, true
	}
	return "", false
}

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

// writeJSONAtomic mirrors internal/store's write-temp-then-rename pattern so
// a reader never observes a partially written navigation file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating navigation directory %s: %w", dir, err)
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
