// Package identity resolves transient ADB connection IDs to stable device
// IDs and keeps the mapping persisted across restarts.
//
// A connection ID (CID) is whatever address currently reaches a device -
// "host:port" for wireless debugging, a USB serial for wired connections.
// Wireless-debugging ports shuffle on every reconnect, so CIDs cannot be
// used to key durable user data such as sensors, actions and flows.
//
// A stable device ID (SDID) is derived once per physical device through a
// fallback chain (hardware serial, boot serial, adb get-serialno, hashed
// android_id, hashed build fingerprint, hashed manufacturer+model, and
// finally a sanitised CID as the last resort) and never changes for that
// device afterwards.
//
// The Registry persists the CID<->SDID mapping in SQLite and performs a
// migration whenever a new CID resolves to a previously-known SDID, so
// callers holding onto the old CID can be redirected transparently.
package identity
