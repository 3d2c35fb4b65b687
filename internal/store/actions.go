package store

import (
	"context"
	"fmt"
	"sync"
)

const kindAction = "action"

type actionCache struct {
	mu    sync.RWMutex
	byDev map[string]map[string]*Action
}

func newActionCache() *actionCache {
	return &actionCache{byDev: make(map[string]map[string]*Action)}
}

func (s *Store) loadActions(sdid string) (map[string]*Action, error) {
	s.actions.mu.RLock()
	if m, ok := s.actions.byDev[sdid]; ok {
		s.actions.mu.RUnlock()
		return m, nil
	}
	s.actions.mu.RUnlock()

	deviceFileMu.Lock()
	defer deviceFileMu.Unlock()

	s.actions.mu.RLock()
	if m, ok := s.actions.byDev[sdid]; ok {
		s.actions.mu.RUnlock()
		return m, nil
	}
	s.actions.mu.RUnlock()

	var file deviceFile[*Action]
	ok, err := readJSONFile(s.devicePath(kindAction, sdid), &file)
	if err != nil {
		return nil, err
	}
	m := file.Records
	if !ok || m == nil {
		m = make(map[string]*Action)
	}

	s.actions.mu.Lock()
	s.actions.byDev[sdid] = m
	s.actions.mu.Unlock()
	return m, nil
}

func (s *Store) persistActions(sdid string, m map[string]*Action) error {
	return writeJSONAtomic(s.devicePath(kindAction, sdid), deviceFile[*Action]{
		StableDeviceID: sdid,
		Records:        m,
	})
}

// GetAction resolves anyID and returns the named action, deep-copied.
func (s *Store) GetAction(ctx context.Context, anyID, actionID string) (*Action, error) {
	sdid, ok := s.resolveSDID(ctx, kindAction, anyID)
	if !ok {
		return nil, fmt.Errorf("resolving device %q: %w", anyID, ErrNotFound)
	}

	m, err := s.loadActions(sdid)
	if err != nil {
		return nil, err
	}

	s.actions.mu.RLock()
	action, ok := m[actionID]
	s.actions.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("action %q on device %q: %w", actionID, sdid, ErrNotFound)
	}
	return action.DeepCopy(), nil
}

// ListActions returns every action registered against the device. Used to
// populate the MQTT button entities for a device.
func (s *Store) ListActions(ctx context.Context, anyID string) ([]*Action, error) {
	sdid, ok := s.resolveSDID(ctx, kindAction, anyID)
	if !ok {
		return nil, nil
	}

	m, err := s.loadActions(sdid)
	if err != nil {
		return nil, err
	}

	s.actions.mu.RLock()
	defer s.actions.mu.RUnlock()
	out := make([]*Action, 0, len(m))
	for _, action := range m {
		out = append(out, action.DeepCopy())
	}
	return out, nil
}

// UpsertAction creates or replaces an action record for sdid.
func (s *Store) UpsertAction(sdid string, action *Action) error {
	m, err := s.loadActions(sdid)
	if err != nil {
		return err
	}

	s.actions.mu.Lock()
	defer s.actions.mu.Unlock()

	updated := make(map[string]*Action, len(m)+1)
	for k, v := range m {
		updated[k] = v
	}
	updated[action.ActionID] = action.DeepCopy()

	if err := s.persistActions(sdid, updated); err != nil {
		return err
	}
	s.actions.byDev[sdid] = updated
	return nil
}

// DeleteAction removes an action record.
func (s *Store) DeleteAction(sdid, actionID string) error {
	m, err := s.loadActions(sdid)
	if err != nil {
		return err
	}

	s.actions.mu.Lock()
	defer s.actions.mu.Unlock()

	if _, ok := m[actionID]; !ok {
		return fmt.Errorf("action %q on device %q: %w", actionID, sdid, ErrNotFound)
	}

	updated := make(map[string]*Action, len(m))
	for k, v := range m {
		if k != actionID {
			updated[k] = v
		}
	}

	if err := s.persistActions(sdid, updated); err != nil {
		return err
	}
	s.actions.byDev[sdid] = updated
	return nil
}
