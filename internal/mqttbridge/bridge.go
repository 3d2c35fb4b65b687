package mqttbridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/scryerhq/scryer-core/internal/store"
)

// Publisher is the subset of *mqttclient.Client the bridge depends on,
// narrowed so tests can fake it without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// batchPipelineDelay is the pause after a burst of QoS-0 publishes, giving
// the underlying client time to pipeline the writes before the caller
// moves on.
const batchPipelineDelay = 10 * time.Millisecond

// Bridge publishes Home Assistant MQTT discovery, sensor state and
// availability, and routes inbound companion-app/command traffic.
type Bridge struct {
	client       Publisher
	topics       Topics
	displayNamer DisplayNamer
	logger       Logger

	capMu sync.RWMutex
	caps  map[string]map[string]struct{} // effective device ID -> capability set

	commands *commandRouter
}

// Logger is the narrow logging interface the bridge accepts, compatible
// with the structured loggers used elsewhere in this module.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Info(string, ...any)  {}

// New constructs a Bridge over an already-connected Publisher. discoveryPrefix
// may be empty, defaulting to "homeassistant".
func New(client Publisher, discoveryPrefix string) *Bridge {
	return &Bridge{
		client:   client,
		topics:   NewTopics(discoveryPrefix),
		logger:   noopLogger{},
		caps:     make(map[string]map[string]struct{}),
		commands: newCommandRouter(),
	}
}

// SetDisplayNamer installs the device-display-name resolver used when
// building discovery device blocks. A nil namer falls back to "Scryer
// {deviceID}", with " - {appName}" appended when an app name is known.
func (b *Bridge) SetDisplayNamer(namer DisplayNamer) {
	b.displayNamer = namer
}

// SetLogger installs a logger for warnings (e.g. publish failures).
func (b *Bridge) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	b.logger = l
}

// PublishSensorDiscovery publishes the Home Assistant discovery config for
// one sensor (RemoveSensorDiscovery retracts it), and subscribes nothing
// further: sensors have no inbound command topic.
func (b *Bridge) PublishSensorDiscovery(s *store.Sensor) error {
	topic, payload := b.buildSensorDiscovery(s)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(topic, body, 0, true)
}

// RemoveSensorDiscovery retracts a sensor's discovery config by publishing
// an empty retained payload, matching the Home Assistant removal
// convention.
func (b *Bridge) RemoveSensorDiscovery(s *store.Sensor) error {
	topic := b.topics.SensorDiscovery(effectiveDeviceID(s.StableDeviceID, s.DeviceID), s.SensorID, s.SensorType == "binary_sensor")
	return b.client.Publish(topic, nil, 0, true)
}

// PublishActionDiscovery publishes the discovery config for an action
// (exposed as a button entity) and subscribes to its execute command
// topic so onExecute receives EXECUTE presses.
func (b *Bridge) PublishActionDiscovery(a *store.Action, onExecute ActionCommandHandler) error {
	topic, payload := b.buildActionDiscovery(a)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(topic, body, 0, true); err != nil {
		return err
	}

	effID := effectiveDeviceID(a.StableDeviceID, a.DeviceID)
	commandTopic := b.topics.ActionExecuteTopic(effID, a.ActionID)
	return b.client.Subscribe(commandTopic, 0, b.makeActionExecuteHandler(effID, a.ActionID, onExecute))
}

// RemoveActionDiscovery retracts an action's discovery config.
func (b *Bridge) RemoveActionDiscovery(a *store.Action) error {
	effID := effectiveDeviceID(a.StableDeviceID, a.DeviceID)
	topic := b.topics.ActionDiscovery(effID, a.ActionID)
	return b.client.Publish(topic, nil, 0, true)
}

// PublishAvailability publishes a device's online/offline status,
// addressed by its effective ID so it lines up with discovery's
// availability_topic regardless of IP/port churn.
func (b *Bridge) PublishAvailability(stableDeviceID, deviceID string, online bool) error {
	effID := effectiveDeviceID(stableDeviceID, deviceID)
	payload := "offline"
	if online {
		payload = "online"
	}
	return b.client.Publish(b.topics.Availability(effID), []byte(payload), 0, true)
}

// SensorUpdate pairs a sensor definition with a freshly read value, the
// unit passed to PublishStateBatch.
type SensorUpdate struct {
	Sensor *store.Sensor
	Value  string
}

// BatchResult summarizes a PublishStateBatch call.
type BatchResult struct {
	Success       int
	FailedSensors []string
}

// PublishStateBatch publishes state (and attributes) for many sensors in
// one pass, at QoS 0 with retain=true, pausing briefly afterward to let
// the client pipeline the writes. Binary sensor values are normalized to
// ON/OFF before publishing.
func (b *Bridge) PublishStateBatch(updates []SensorUpdate) BatchResult {
	result := BatchResult{}
	now := time.Now()

	for _, u := range updates {
		effID := effectiveDeviceID(u.Sensor.StableDeviceID, u.Sensor.DeviceID)
		value := u.Value
		if u.Sensor.SensorType == "binary_sensor" {
			value = normalizeBinary(value)
		}

		stateTopic := b.topics.SensorState(effID, u.Sensor.SensorID)
		if err := b.client.Publish(stateTopic, []byte(value), 0, true); err != nil {
			b.logger.Warn("mqttbridge: publish state failed", "sensor_id", u.Sensor.SensorID, "err", err)
			result.FailedSensors = append(result.FailedSensors, u.Sensor.SensorID)
			continue
		}
		result.Success++

		attrs := map[string]any{
			"last_updated":      now.Format(time.RFC3339),
			"source_element":    u.Sensor.Source.ElementResourceID,
			"extraction_method": u.Sensor.ExtractionRule.Method,
			"device_id":         u.Sensor.DeviceID,
		}
		attrsBody, err := json.Marshal(attrs)
		if err == nil {
			attrsTopic := b.topics.SensorAttributes(effID, u.Sensor.SensorID)
			if err := b.client.Publish(attrsTopic, attrsBody, 0, true); err != nil {
				b.logger.Warn("mqttbridge: publish attributes failed", "sensor_id", u.Sensor.SensorID, "err", err)
			}
		}
	}

	time.Sleep(batchPipelineDelay)
	return result
}

// falsyBinaryValues is the fixed set of raw values that normalize to OFF
// for a binary_sensor.
var falsyBinaryValues = map[string]struct{}{
	"0": {}, "false": {}, "off": {}, "no": {}, "null": {}, "none": {}, "": {},
}

func normalizeBinary(value string) string {
	lower := lowerASCII(value)
	if _, falsy := falsyBinaryValues[lower]; falsy {
		return "OFF"
	}
	return "ON"
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
