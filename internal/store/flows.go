package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const kindFlow = "flow"

type flowCache struct {
	mu    sync.RWMutex
	byDev map[string]map[string]*Flow
}

func newFlowCache() *flowCache {
	return &flowCache{byDev: make(map[string]map[string]*Flow)}
}

func (s *Store) loadFlows(sdid string) (map[string]*Flow, error) {
	s.flows.mu.RLock()
	if m, ok := s.flows.byDev[sdid]; ok {
		s.flows.mu.RUnlock()
		return m, nil
	}
	s.flows.mu.RUnlock()

	deviceFileMu.Lock()
	defer deviceFileMu.Unlock()

	s.flows.mu.RLock()
	if m, ok := s.flows.byDev[sdid]; ok {
		s.flows.mu.RUnlock()
		return m, nil
	}
	s.flows.mu.RUnlock()

	var file deviceFile[*Flow]
	ok, err := readJSONFile(s.devicePath(kindFlow, sdid), &file)
	if err != nil {
		return nil, err
	}
	m := file.Records
	if !ok || m == nil {
		m = make(map[string]*Flow)
	}

	s.flows.mu.Lock()
	s.flows.byDev[sdid] = m
	s.flows.mu.Unlock()
	return m, nil
}

func (s *Store) persistFlows(sdid string, m map[string]*Flow) error {
	return writeJSONAtomic(s.devicePath(kindFlow, sdid), deviceFile[*Flow]{
		StableDeviceID: sdid,
		Records:        m,
	})
}

// GetFlow resolves anyID and returns the named flow, deep-copied.
func (s *Store) GetFlow(ctx context.Context, anyID, flowID string) (*Flow, error) {
	sdid, ok := s.resolveSDID(ctx, kindFlow, anyID)
	if !ok {
		return nil, fmt.Errorf("resolving device %q: %w", anyID, ErrNotFound)
	}

	m, err := s.loadFlows(sdid)
	if err != nil {
		return nil, err
	}

	s.flows.mu.RLock()
	flow, ok := m[flowID]
	s.flows.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("flow %q on device %q: %w", flowID, sdid, ErrNotFound)
	}
	return flow.DeepCopy(), nil
}

// ListFlows returns every flow registered against the device.
func (s *Store) ListFlows(ctx context.Context, anyID string) ([]*Flow, error) {
	sdid, ok := s.resolveSDID(ctx, kindFlow, anyID)
	if !ok {
		return nil, nil
	}

	m, err := s.loadFlows(sdid)
	if err != nil {
		return nil, err
	}

	s.flows.mu.RLock()
	defer s.flows.mu.RUnlock()
	out := make([]*Flow, 0, len(m))
	for _, flow := range m {
		out = append(out, flow.DeepCopy())
	}
	return out, nil
}

// ListEnabledFlows returns every enabled flow across every known device,
// used by the Flow Scheduler's periodic re-enqueue loop.
func (s *Store) ListEnabledFlows(ctx context.Context) ([]*Flow, error) {
	var all []*Flow
	for _, sdid := range s.knownDeviceSDIDs(ctx) {
		m, err := s.loadFlows(sdid)
		if err != nil {
			s.logger.Warn("loading flows for device failed", "sdid", sdid, "error", err)
			continue
		}
		s.flows.mu.RLock()
		for _, flow := range m {
			if flow.Enabled {
				all = append(all, flow.DeepCopy())
			}
		}
		s.flows.mu.RUnlock()
	}
	return all, nil
}

// knownDeviceSDIDs returns every SDID the identity registry knows about.
// With no resolver wired it returns none; flow files on disk are not
// scanned.
func (s *Store) knownDeviceSDIDs(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var ids []string

	if s.resolver != nil {
		if records, err := s.resolver.List(ctx); err == nil {
			for _, rec := range records {
				if _, ok := seen[rec.SDID]; !ok {
					seen[rec.SDID] = struct{}{}
					ids = append(ids, rec.SDID)
				}
			}
		}
	}
	return ids
}

// UpsertFlow creates or replaces a flow record for sdid.
func (s *Store) UpsertFlow(sdid string, flow *Flow) error {
	m, err := s.loadFlows(sdid)
	if err != nil {
		return err
	}

	s.flows.mu.Lock()
	defer s.flows.mu.Unlock()

	updated := make(map[string]*Flow, len(m)+1)
	for k, v := range m {
		updated[k] = v
	}
	updated[flow.FlowID] = flow.DeepCopy()

	if err := s.persistFlows(sdid, updated); err != nil {
		return err
	}
	s.flows.byDev[sdid] = updated
	return nil
}

// RecordFlowRun updates a flow's runtime counters after one execution.
func (s *Store) RecordFlowRun(sdid, flowID string, succeeded bool, at time.Time) error {
	m, err := s.loadFlows(sdid)
	if err != nil {
		return err
	}

	s.flows.mu.Lock()
	defer s.flows.mu.Unlock()

	existing, ok := m[flowID]
	if !ok {
		return fmt.Errorf("flow %q on device %q: %w", flowID, sdid, ErrNotFound)
	}

	cp := existing.DeepCopy()
	cp.RunCount++
	cp.LastRunAt = at
	if succeeded {
		cp.LastRunStatus = "success"
	} else {
		cp.FailCount++
		cp.LastRunStatus = "failed"
	}

	updated := make(map[string]*Flow, len(m))
	for k, v := range m {
		updated[k] = v
	}
	updated[flowID] = cp

	if err := s.persistFlows(sdid, updated); err != nil {
		return err
	}
	s.flows.byDev[sdid] = updated
	return nil
}

// DeleteFlow removes a flow record.
func (s *Store) DeleteFlow(sdid, flowID string) error {
	m, err := s.loadFlows(sdid)
	if err != nil {
		return err
	}

	s.flows.mu.Lock()
	defer s.flows.mu.Unlock()

	if _, ok := m[flowID]; !ok {
		return fmt.Errorf("flow %q on device %q: %w", flowID, sdid, ErrNotFound)
	}

	updated := make(map[string]*Flow, len(m))
	for k, v := range m {
		if k != flowID {
			updated[k] = v
		}
	}

	if err := s.persistFlows(sdid, updated); err != nil {
		return err
	}
	s.flows.byDev[sdid] = updated
	return nil
}
