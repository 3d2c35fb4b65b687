package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const kindSensor = "sensor"

// sensorCache is the in-memory, cache-through layer for Sensor records,
// keyed by stable device ID then sensor ID.
type sensorCache struct {
	mu     sync.RWMutex
	byDev  map[string]map[string]*Sensor
}

func newSensorCache() *sensorCache {
	return &sensorCache{byDev: make(map[string]map[string]*Sensor)}
}

// loadSensors loads (or returns the cached) sensor map for sdid.
func (s *Store) loadSensors(sdid string) (map[string]*Sensor, error) {
	s.sensors.mu.RLock()
	if m, ok := s.sensors.byDev[sdid]; ok {
		s.sensors.mu.RUnlock()
		return m, nil
	}
	s.sensors.mu.RUnlock()

	deviceFileMu.Lock()
	defer deviceFileMu.Unlock()

	s.sensors.mu.RLock()
	if m, ok := s.sensors.byDev[sdid]; ok {
		s.sensors.mu.RUnlock()
		return m, nil
	}
	s.sensors.mu.RUnlock()

	var file deviceFile[*Sensor]
	ok, err := readJSONFile(s.devicePath(kindSensor, sdid), &file)
	if err != nil {
		return nil, err
	}
	m := file.Records
	if !ok || m == nil {
		m = make(map[string]*Sensor)
	}

	s.sensors.mu.Lock()
	s.sensors.byDev[sdid] = m
	s.sensors.mu.Unlock()
	return m, nil
}

func (s *Store) persistSensors(sdid string, m map[string]*Sensor) error {
	return writeJSONAtomic(s.devicePath(kindSensor, sdid), deviceFile[*Sensor]{
		StableDeviceID: sdid,
		Records:        m,
	})
}

// GetSensor resolves anyID (CID or SDID) and returns the named sensor. The
// returned record is a deep copy; callers may mutate it freely.
func (s *Store) GetSensor(ctx context.Context, anyID, sensorID string) (*Sensor, error) {
	sdid, ok := s.resolveSDID(ctx, kindSensor, anyID)
	if !ok {
		return nil, fmt.Errorf("resolving device %q: %w", anyID, ErrNotFound)
	}

	m, err := s.loadSensors(sdid)
	if err != nil {
		return nil, err
	}

	s.sensors.mu.RLock()
	sensor, ok := m[sensorID]
	s.sensors.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sensor %q on device %q: %w", sensorID, sdid, ErrNotFound)
	}
	return sensor.DeepCopy(), nil
}

// ListSensors returns every sensor registered against the device.
func (s *Store) ListSensors(ctx context.Context, anyID string) ([]*Sensor, error) {
	sdid, ok := s.resolveSDID(ctx, kindSensor, anyID)
	if !ok {
		return nil, nil
	}

	m, err := s.loadSensors(sdid)
	if err != nil {
		return nil, err
	}

	s.sensors.mu.RLock()
	defer s.sensors.mu.RUnlock()
	out := make([]*Sensor, 0, len(m))
	for _, sensor := range m {
		out = append(out, sensor.DeepCopy())
	}
	return out, nil
}

// UpsertSensor creates or replaces a sensor record for sdid (always the
// stable device ID; callers that only have a CID should resolve it first
// via the Identity Resolver, since new records must be written under the
// canonical key). Writes are persist-then-cache: the in-memory copy is
// updated only after the file write succeeds.
func (s *Store) UpsertSensor(sdid string, sensor *Sensor) error {
	m, err := s.loadSensors(sdid)
	if err != nil {
		return err
	}

	s.sensors.mu.Lock()
	defer s.sensors.mu.Unlock()

	updated := make(map[string]*Sensor, len(m)+1)
	for k, v := range m {
		updated[k] = v
	}
	cp := sensor.DeepCopy()
	updated[sensor.SensorID] = cp

	if err := s.persistSensors(sdid, updated); err != nil {
		return err
	}
	s.sensors.byDev[sdid] = updated
	return nil
}

// RecordSensorValue updates a sensor's current value and timestamp in
// place, used by the Flow Executor's capture_sensors step (§4.6.5) after
// extraction. This is a narrower write than UpsertSensor so capture-loop
// hot paths don't need to reconstruct the whole record.
func (s *Store) RecordSensorValue(sdid, sensorID, value string, at time.Time) error {
	m, err := s.loadSensors(sdid)
	if err != nil {
		return err
	}

	s.sensors.mu.Lock()
	defer s.sensors.mu.Unlock()

	existing, ok := m[sensorID]
	if !ok {
		return fmt.Errorf("sensor %q on device %q: %w", sensorID, sdid, ErrNotFound)
	}

	updated := make(map[string]*Sensor, len(m))
	for k, v := range m {
		updated[k] = v
	}
	cp := existing.DeepCopy()
	cp.CurrentValue = value
	cp.LastUpdated = at
	updated[sensorID] = cp

	if err := s.persistSensors(sdid, updated); err != nil {
		return err
	}
	s.sensors.byDev[sdid] = updated
	return nil
}

// DeleteSensor removes a sensor record.
func (s *Store) DeleteSensor(sdid, sensorID string) error {
	m, err := s.loadSensors(sdid)
	if err != nil {
		return err
	}

	s.sensors.mu.Lock()
	defer s.sensors.mu.Unlock()

	if _, ok := m[sensorID]; !ok {
		return fmt.Errorf("sensor %q on device %q: %w", sensorID, sdid, ErrNotFound)
	}

	updated := make(map[string]*Sensor, len(m))
	for k, v := range m {
		if k != sensorID {
			updated[k] = v
		}
	}

	if err := s.persistSensors(sdid, updated); err != nil {
		return err
	}
	s.sensors.byDev[sdid] = updated
	return nil
}
