// Package store persists Sensor, Action and Flow records as per-device JSON
// files keyed by stable device ID, with an in-memory cache-through layer,
// atomic writes, and lookup by any ID variant (connection ID, stable ID, or
// a whole-store scan as a last resort).
//
// It also owns the Flow Template and Bundled App Flow catalogs, and the
// SQLite-backed execution log.
package store
