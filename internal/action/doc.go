// Package action executes a store.Action against a device: resolves its
// target element (when one is recorded) via internal/uimodel and issues
// the corresponding primitive through internal/adbtransport.
//
// Actions surface in Home Assistant as button entities (see
// internal/mqttbridge); this package is what runs when one of those
// buttons is pressed, or when a flow step's execute_action dispatches
// into one.
package action
