package mqttbridge

import (
	"fmt"
	"strings"

	"github.com/scryerhq/scryer-core/internal/identity"
)

// DefaultDiscoveryPrefix is the Home Assistant MQTT discovery root topic.
const DefaultDiscoveryPrefix = "homeassistant"

// statePrefix is the root for every non-discovery topic this bridge owns
// (state, attributes, availability, commands and per-device companion-app
// traffic), except the shared announce topic below.
const statePrefix = "visual_mapper"

// announceTopic is the single shared topic companion apps publish their
// initial presence announcement to, before any per-device topic exists.
const announceTopic = "visualmapper/devices/announce"

// Topics builds every topic this bridge publishes or subscribes to. The
// discovery prefix is configurable (Home Assistant installs can rename
// it); the visual_mapper/ state prefix is fixed, matching every consumer
// that has ever subscribed to it.
type Topics struct {
	DiscoveryPrefix string
}

// NewTopics returns a Topics builder, defaulting an empty prefix to
// DefaultDiscoveryPrefix.
func NewTopics(discoveryPrefix string) Topics {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	return Topics{DiscoveryPrefix: discoveryPrefix}
}

func sanitize(id string) string {
	return identity.SanitizeForTopic(id)
}

// SensorDiscovery returns the discovery config topic for a sensor or
// binary_sensor entity, keyed by the effective device ID (SDID preferred).
func (t Topics) SensorDiscovery(effectiveDeviceID, sensorID string, binary bool) string {
	component := "sensor"
	if binary {
		component = "binary_sensor"
	}
	return fmt.Sprintf("%s/%s/%s/%s/config", t.DiscoveryPrefix, component, sanitize(effectiveDeviceID), sensorID)
}

// ActionDiscovery returns the discovery config topic for an action,
// published as a Home Assistant button entity.
func (t Topics) ActionDiscovery(effectiveDeviceID, actionID string) string {
	return fmt.Sprintf("%s/button/%s/%s/config", t.DiscoveryPrefix, sanitize(effectiveDeviceID), actionID)
}

// SensorState returns the retained state topic for a sensor.
func (t Topics) SensorState(effectiveDeviceID, sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/state", statePrefix, sanitize(effectiveDeviceID), sensorID)
}

// SensorAttributes returns the retained attributes topic for a sensor.
func (t Topics) SensorAttributes(effectiveDeviceID, sensorID string) string {
	return fmt.Sprintf("%s/%s/%s/attributes", statePrefix, sanitize(effectiveDeviceID), sensorID)
}

// Availability returns the retained online/offline topic for a device.
func (t Topics) Availability(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/status", statePrefix, sanitize(effectiveDeviceID))
}

// ActionExecuteTopic returns the command topic a button entity's
// command_topic points at, and that the bridge subscribes to.
func (t Topics) ActionExecuteTopic(effectiveDeviceID, actionID string) string {
	return fmt.Sprintf("%s/%s/action/%s/execute", statePrefix, sanitize(effectiveDeviceID), actionID)
}

// DeviceAnnounce is the single shared topic companion apps publish their
// presence/capability announcement to.
func (t Topics) DeviceAnnounce() string {
	return announceTopic
}

// FlowResult returns the topic a companion app publishes a flow's
// client-executed result to.
func (t Topics) FlowResult(effectiveDeviceID, flowID string) string {
	return fmt.Sprintf("%s/%s/flow/%s/result", statePrefix, sanitize(effectiveDeviceID), flowID)
}

// FlowExecute returns the topic the scheduler's Execution Router publishes
// a flow-execution command to when dispatching to a companion app instead
// of running the flow server-side.
func (t Topics) FlowExecute(effectiveDeviceID, flowID string) string {
	return fmt.Sprintf("%s/%s/flow/%s/execute", statePrefix, sanitize(effectiveDeviceID), flowID)
}

// GestureResult returns the topic a companion app publishes gesture
// injection results to.
func (t Topics) GestureResult(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/gesture/result", statePrefix, sanitize(effectiveDeviceID))
}

// NavigationLearn returns the topic a companion app publishes newly
// learned screen/navigation observations to.
func (t Topics) NavigationLearn(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/navigation/learn", statePrefix, sanitize(effectiveDeviceID))
}

// UIResponse returns the topic a companion app publishes a requested UI
// tree dump to, matched back to a SendUITreeRequest by request_id.
func (t Topics) UIResponse(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/ui/response", statePrefix, sanitize(effectiveDeviceID))
}

// UIRequest returns the topic the bridge publishes a UI tree request to.
func (t Topics) UIRequest(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/ui/request", statePrefix, sanitize(effectiveDeviceID))
}

// CompanionStatus returns the per-device status topic a companion app
// publishes its own liveness/capability status to.
func (t Topics) CompanionStatus(effectiveDeviceID string) string {
	return fmt.Sprintf("%s/%s/status", statePrefix, sanitize(effectiveDeviceID))
}

// SensorDiscoveryWildcard returns a subscription pattern matching every
// retained discovery config under the discovery prefix. Nothing in this
// module subscribes to it.
func (t Topics) SensorDiscoveryWildcard() string {
	return fmt.Sprintf("%s/+/+/+/config", t.DiscoveryPrefix)
}

// flowIDFromResultTopic extracts the flow ID from a flow-result topic of
// the form "visual_mapper/{d}/flow/{flow_id}/result".
func flowIDFromResultTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p == "flow" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// appIdentifierFromResourceID extracts the package prefix from an Android
// resource ID of the form "com.package.name:id/widget", returning "" if
// the ID has no package-qualified prefix.
func appIdentifierFromResourceID(resourceID string) string {
	idx := strings.Index(resourceID, ":")
	if idx <= 0 {
		return ""
	}
	return resourceID[:idx]
}

// appNameFromPackage derives a short display name from a dotted package
// identifier, taking the second-to-last segment and upper-casing it
// (e.g. "com.byd.autolink" -> "BYD").
func appNameFromPackage(pkg string) string {
	parts := strings.Split(pkg, ".")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToUpper(parts[len(parts)-2])
}
