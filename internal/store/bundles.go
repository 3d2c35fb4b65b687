package store

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

//go:embed assets/bundled_flows.json
var bundledFlowsFS embed.FS

// BundledAppFlow is a pre-defined flow for a known app package, installable
// against any device in one operation.
type BundledAppFlow struct {
	Package string `json:"-"`
	Name    string `json:"name"`
	Steps   []Step `json:"steps"`
}

type bundleCatalog struct {
	mu      sync.RWMutex
	builtin map[string]BundledAppFlow
}

func loadBuiltinBundles() map[string]BundledAppFlow {
	data, err := bundledFlowsFS.ReadFile("assets/bundled_flows.json")
	if err != nil {
		return map[string]BundledAppFlow{}
	}
	var raw map[string]BundledAppFlow
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]BundledAppFlow{}
	}
	for pkg, bundle := range raw {
		bundle.Package = pkg
		raw[pkg] = bundle
	}
	return raw
}

// GetBundle returns the bundled flow registered for an app package name.
func (s *Store) GetBundle(pkg string) (BundledAppFlow, error) {
	s.bundles.mu.RLock()
	defer s.bundles.mu.RUnlock()
	bundle, ok := s.bundles.builtin[pkg]
	if !ok {
		return BundledAppFlow{}, fmt.Errorf("bundle %q: %w", pkg, ErrUnknownBundle)
	}
	return bundle, nil
}

// ListBundles returns every known bundled app flow.
func (s *Store) ListBundles() []BundledAppFlow {
	s.bundles.mu.RLock()
	defer s.bundles.mu.RUnlock()
	out := make([]BundledAppFlow, 0, len(s.bundles.builtin))
	for _, bundle := range s.bundles.builtin {
		out = append(out, bundle)
	}
	return out
}

// InstallBundle deep-copies a bundled app flow's steps into a new Flow
// bound to sdid, persists it, and returns the installed record. The new
// flow's ID is generated, so installing the same bundle twice against one
// device produces two independent flows.
func (s *Store) InstallBundle(sdid, pkg string) (*Flow, error) {
	bundle, err := s.GetBundle(pkg)
	if err != nil {
		return nil, err
	}

	flow := &Flow{
		FlowID:                "flow-" + uuid.NewString()[:8],
		StableDeviceID:        sdid,
		Name:                  bundle.Name,
		Steps:                 deepCopySteps(bundle.Steps),
		UpdateIntervalSeconds: 300,
		Enabled:               true,
		MaxFlowRetries:        1,
		FlowTimeout:           60,
	}

	if err := s.UpsertFlow(sdid, flow); err != nil {
		return nil, fmt.Errorf("installing bundle %q for device %q: %w", pkg, sdid, err)
	}
	return flow, nil
}
