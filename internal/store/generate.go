package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GenerateFlowForSensor synthesizes a minimal four-step flow bound to an
// already-registered sensor: launch the sensor's target app, wait for it to
// settle, capture the sensor, then return home. It exists so a sensor
// discovered interactively (picked element, no flow written yet) has
// somewhere to run without the caller hand-assembling a step list.
func (s *Store) GenerateFlowForSensor(ctx context.Context, sdid, sensorID string) (*Flow, error) {
	sensor, err := s.GetSensor(ctx, sdid, sensorID)
	if err != nil {
		return nil, fmt.Errorf("generating flow for sensor %q: %w", sensorID, err)
	}
	if sensor.TargetApp == "" {
		return nil, fmt.Errorf("generating flow for sensor %q: %w", sensorID, ErrNoTargetApp)
	}

	steps := []Step{
		{StepType: "launch_app", Package: sensor.TargetApp},
		{StepType: "wait", DurationMs: 1500},
		{StepType: "capture_sensors", SensorIDs: []string{sensorID}},
		{StepType: "go_home"},
	}

	flow := &Flow{
		FlowID:                "flow-" + uuid.NewString()[:8],
		StableDeviceID:        sensor.StableDeviceID,
		Name:                  sensor.FriendlyName + " (auto)",
		Steps:                 steps,
		UpdateIntervalSeconds: sensor.UpdateIntervalSeconds,
		Enabled:               true,
		MaxFlowRetries:        1,
		FlowTimeout:           60,
	}

	if err := s.UpsertFlow(sdid, flow); err != nil {
		return nil, fmt.Errorf("generating flow for sensor %q: %w", sensorID, err)
	}
	return flow, nil
}
