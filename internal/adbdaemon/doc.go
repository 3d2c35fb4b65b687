// Package adbdaemon supervises the local `adb` server process that
// internal/adbtransport's persistent-shell and library backends depend on.
//
// The adb client normally spawns its own server on first use, but a
// server that dies mid-session (OOM, USB re-enumeration storms, a stray
// `adb kill-server` from another tool on the host) silently breaks every
// device connection until something notices and restarts it. adbdaemon
// makes that restart explicit and supervised instead of accidental.
//
// config.yaml has no section for this package: cmd/scryerd builds the
// Manager with Managed set to false and Binary taken from adb.binary.
package adbdaemon
