package adbtransport

import (
	"context"
	"strings"
)

// Probe adapts Transport to identity.Probe, supplying the device
// properties used by the stable-device-ID fallback chain.
type Probe struct {
	transport *Transport
}

// NewProbe wraps a Transport as an identity.Probe.
func NewProbe(t *Transport) *Probe {
	return &Probe{transport: t}
}

func (p *Probe) getprop(ctx context.Context, cid, prop string) (string, error) {
	out, err := p.transport.Shell(ctx, cid, "getprop "+prop)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HardwareSerial returns ro.serialno.
func (p *Probe) HardwareSerial(ctx context.Context, cid string) (string, error) {
	return p.getprop(ctx, cid, "ro.serialno")
}

// BootSerial returns ro.boot.serialno.
func (p *Probe) BootSerial(ctx context.Context, cid string) (string, error) {
	return p.getprop(ctx, cid, "ro.boot.serialno")
}

// AdbSerial returns the CID it was called with, which is what
// `adb -s <cid> get-serialno` echoes back; no command is run. For devices
// reachable only over wireless debugging this is a host:port address,
// which the resolver must reject.
func (p *Probe) AdbSerial(ctx context.Context, cid string) (string, error) {
	return cid, nil
}

// AndroidID returns the device's settings android_id.
func (p *Probe) AndroidID(ctx context.Context, cid string) (string, error) {
	out, err := p.transport.Shell(ctx, cid, "settings get secure android_id")
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(out)
	if value == "null" {
		return "", nil
	}
	return value, nil
}

// BuildFingerprint returns ro.build.fingerprint.
func (p *Probe) BuildFingerprint(ctx context.Context, cid string) (string, error) {
	return p.getprop(ctx, cid, "ro.build.fingerprint")
}

// ManufacturerModel returns (ro.product.manufacturer, ro.product.model).
func (p *Probe) ManufacturerModel(ctx context.Context, cid string) (string, string, error) {
	mfr, err := p.getprop(ctx, cid, "ro.product.manufacturer")
	if err != nil {
		return "", "", err
	}
	model, err := p.getprop(ctx, cid, "ro.product.model")
	if err != nil {
		return "", "", err
	}
	return mfr, model, nil
}
