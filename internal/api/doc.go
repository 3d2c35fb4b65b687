// Package api implements the minimal read-only HTTP surface: a liveness
// check, a metrics snapshot, and a device introspection listing.
//
// This is not a control-plane API — it has no auth, no device mutation,
// and no WebSocket push. Flows run, devices unlock, and sensors publish
// entirely through internal/scheduler and internal/mqttbridge; this
// package exists so an operator or monitoring tool can see what the
// system is doing without reaching into its logs.
package api
