// Package mqttbridge speaks the Home Assistant MQTT discovery dialect on
// top of internal/infrastructure/mqttclient, publishes sensor state and
// availability, routes inbound commands (action execution, companion-app
// results) to registered handlers, and caches capabilities announced by
// companion apps.
//
// It owns the domain topic scheme; mqttclient only knows about its own
// liveness topics (internal/infrastructure/mqttclient.SystemTopics).
package mqttbridge
