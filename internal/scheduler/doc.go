// Package scheduler is the Flow Scheduler (C7): one priority queue and
// mutex per device, a periodic re-enqueue loop per enabled flow, and an
// Execution Router that picks between running a flow locally through
// internal/executor or handing it to a device's companion app over MQTT.
//
// Each device gets its own long-running worker over a durable priority
// queue rather than a wait-group fanned out per activation, because flows
// recur indefinitely instead of firing once.
package scheduler
