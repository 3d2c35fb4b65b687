package identity

import (
	"context"
	"time"
)

// Record is a persisted CID<->SDID binding.
//
// SDID is the primary key; CID is the device's last-known reachable
// address and is expected to change over the device's lifetime.
type Record struct {
	SDID         string
	CID          string
	Manufacturer string
	Model        string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// DeepCopy returns an independent copy of the record.
func (r *Record) DeepCopy() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Probe queries a connected device for the identifying properties used by
// the resolve_serial fallback chain. Implemented by internal/adbtransport;
// kept as an interface here so the resolver has no transport dependency.
type Probe interface {
	// HardwareSerial returns ro.serialno or equivalent, "" if unavailable.
	HardwareSerial(ctx context.Context, cid string) (string, error)

	// BootSerial returns ro.boot.serialno, "" if unavailable.
	BootSerial(ctx context.Context, cid string) (string, error)

	// AdbSerial returns the value of `adb get-serialno`. Callers must reject
	// results that look like "ip:port" - those aren't stable across reconnects.
	AdbSerial(ctx context.Context, cid string) (string, error)

	// AndroidID returns the device's settings android_id, "" if unavailable.
	AndroidID(ctx context.Context, cid string) (string, error)

	// BuildFingerprint returns ro.build.fingerprint, "" if unavailable.
	BuildFingerprint(ctx context.Context, cid string) (string, error)

	// ManufacturerModel returns (ro.product.manufacturer, ro.product.model).
	ManufacturerModel(ctx context.Context, cid string) (string, string, error)
}
