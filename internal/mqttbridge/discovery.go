package mqttbridge

import (
	"github.com/scryerhq/scryer-core/internal/identity"
	"github.com/scryerhq/scryer-core/internal/store"
)

const appVersion = "1.0.0"

// deviceBlock is the Home Assistant "device" object every discovery
// payload includes, grouping entities into one logical device per
// (effective device, app) pair.
type deviceBlock struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
	Manufacturer string  `json:"manufacturer"`
	Model       string   `json:"model"`
	SWVersion   string   `json:"sw_version"`
}

// sensorDiscoveryPayload is the Home Assistant MQTT discovery config for a
// sensor or binary_sensor entity.
type sensorDiscoveryPayload struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	StateTopic        string      `json:"state_topic"`
	AvailabilityTopic string      `json:"availability_topic"`
	JSONAttrsTopic    string      `json:"json_attributes_topic"`
	Device            deviceBlock `json:"device"`
	DeviceClass       string      `json:"device_class,omitempty"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	StateClass        string      `json:"state_class,omitempty"`
	Icon              string      `json:"icon,omitempty"`
	PayloadOn         string      `json:"payload_on,omitempty"`
	PayloadOff        string      `json:"payload_off,omitempty"`
}

// actionDiscoveryPayload is the Home Assistant MQTT discovery config for
// an action, exposed as a button entity.
type actionDiscoveryPayload struct {
	Name              string      `json:"name"`
	UniqueID          string      `json:"unique_id"`
	CommandTopic      string      `json:"command_topic"`
	AvailabilityTopic string      `json:"availability_topic"`
	Icon              string      `json:"icon,omitempty"`
	Device            deviceBlock `json:"device"`
	PayloadPress      string      `json:"payload_press"`
}

// effectiveDeviceID mirrors the original fallback: prefer the stable
// device ID, fall back to the (possibly volatile) connection ID, so
// discovery and state stay addressed to the same identity even before a
// device has a resolved SDID.
func effectiveDeviceID(stableDeviceID, deviceID string) string {
	if stableDeviceID != "" {
		return stableDeviceID
	}
	return deviceID
}

// appIdentity resolves the (package, display name) pair used to group
// entities under one Home Assistant device per app, preferring an
// explicit target app over one parsed from the source element's resource
// ID package prefix.
func appIdentity(targetApp string, source store.SensorSource) (pkg, name string) {
	pkg = targetApp
	if pkg == "" {
		pkg = appIdentifierFromResourceID(source.ElementResourceID)
	}
	if pkg == "" {
		return "", ""
	}
	return pkg, appNameFromPackage(pkg)
}

// DisplayNamer resolves a friendly device display name, e.g.
// "Galaxy Tab A7 - BYD" from cached device info (model/friendly name)
// plus the current app context. Nil is a valid DisplayNamer: it falls
// back to "Scryer {deviceID}", with " - {appName}" appended when an app
// name is known.
type DisplayNamer interface {
	DisplayName(deviceID, appName string) string
}

func displayName(namer DisplayNamer, deviceID, appName string) string {
	if namer != nil {
		if name := namer.DisplayName(deviceID, appName); name != "" {
			return name
		}
	}
	if appName != "" {
		return "Scryer " + deviceID + " - " + appName
	}
	return "Scryer " + deviceID
}

// buildSensorDiscovery builds the discovery payload and topic for one
// sensor. Unit/state-class are included only when they produce a valid HA
// combination: state_class is omitted entirely unless a unit is also set.
func (b *Bridge) buildSensorDiscovery(s *store.Sensor) (topic string, payload sensorDiscoveryPayload) {
	effID := effectiveDeviceID(s.StableDeviceID, s.DeviceID)
	sanitizedEff := identity.SanitizeForTopic(effID)
	pkg, appName := appIdentity(s.TargetApp, s.Source)

	appIdentifier := "default"
	if pkg != "" {
		appIdentifier = identity.SanitizeForTopic(pkg)
	}
	deviceIdentifier := "visual_mapper_" + sanitizedEff + "_" + appIdentifier

	binary := s.SensorType == "binary_sensor"
	topic = b.topics.SensorDiscovery(effID, s.SensorID, binary)

	payload = sensorDiscoveryPayload{
		Name:              s.FriendlyName,
		UniqueID:          "visual_mapper_" + sanitizedEff + "_" + s.SensorID,
		StateTopic:        b.topics.SensorState(effID, s.SensorID),
		AvailabilityTopic: b.topics.Availability(effID),
		JSONAttrsTopic:    b.topics.SensorAttributes(effID, s.SensorID),
		Device: deviceBlock{
			Identifiers: []string{deviceIdentifier},
			Name:        displayName(b.displayNamer, s.DeviceID, appName),
			Manufacturer: "Visual Mapper",
			Model:       firstNonEmpty(appName, "Android Device Monitor"),
			SWVersion:   appVersion,
		},
	}

	if s.DeviceClass != "" && s.DeviceClass != "none" {
		payload.DeviceClass = s.DeviceClass
	}
	if s.UnitOfMeasurement != "" {
		payload.UnitOfMeasurement = s.UnitOfMeasurement
		if s.StateClass != "" {
			payload.StateClass = s.StateClass
		}
	}
	if s.Icon != "" {
		payload.Icon = s.Icon
	}
	if binary {
		payload.PayloadOn = "ON"
		payload.PayloadOff = "OFF"
	}
	return topic, payload
}

// buildActionDiscovery builds the discovery payload and topic for one
// action, exposed as a Home Assistant button entity.
func (b *Bridge) buildActionDiscovery(a *store.Action) (topic string, payload actionDiscoveryPayload) {
	effID := effectiveDeviceID(a.StableDeviceID, a.DeviceID)
	sanitizedEff := identity.SanitizeForTopic(effID)

	topic = b.topics.ActionDiscovery(effID, a.ActionID)
	payload = actionDiscoveryPayload{
		Name:              a.FriendlyName,
		UniqueID:          "visual_mapper_" + sanitizedEff + "_action_" + a.ActionID,
		CommandTopic:      b.topics.ActionExecuteTopic(effID, a.ActionID),
		AvailabilityTopic: b.topics.Availability(effID),
		Icon:              actionIcon(a.ActionType),
		Device: deviceBlock{
			Identifiers:  []string{"visual_mapper_" + sanitizedEff},
			Name:         displayName(b.displayNamer, a.DeviceID, ""),
			Manufacturer: "Visual Mapper",
			Model:        "Android Device Monitor",
			SWVersion:    appVersion,
		},
		PayloadPress: "EXECUTE",
	}
	return topic, payload
}

func actionIcon(actionType string) string {
	switch actionType {
	case "tap":
		return "mdi:gesture-tap"
	case "swipe":
		return "mdi:gesture-swipe"
	case "text":
		return "mdi:keyboard"
	case "keyevent":
		return "mdi:keyboard-outline"
	case "launch_app":
		return "mdi:application"
	case "macro":
		return "mdi:play-box-multiple"
	default:
		return "mdi:gesture-tap-button"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
