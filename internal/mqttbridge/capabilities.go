package mqttbridge

// Known companion-app capability strings. Other components gate
// server-side vs. client-side execution strategy on these via
// HasCapability.
const (
	CapOverlayV2         = "CAP_OVERLAY_V2"
	CapClientOCR         = "CAP_CLIENT_OCR"
	CapIntentPreview     = "CAP_INTENT_PREVIEW"
	CapGestureInjection  = "CAP_GESTURE_INJECTION"
	CapAccessibilityV2   = "CAP_ACCESSIBILITY_V2"
)

// SetCapabilities replaces the capability set announced by a device's
// companion app (from a device-announcement or status message).
func (b *Bridge) SetCapabilities(effectiveDeviceID string, capabilities []string) {
	set := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		set[c] = struct{}{}
	}
	b.capMu.Lock()
	b.caps[effectiveDeviceID] = set
	b.capMu.Unlock()
}

// HasCapability reports whether a device's companion app has announced
// the given capability. Devices with no announcement on file report false
// for every capability, which callers should treat as "fall back to
// server-side execution".
func (b *Bridge) HasCapability(effectiveDeviceID, capability string) bool {
	b.capMu.RLock()
	defer b.capMu.RUnlock()
	set, ok := b.caps[effectiveDeviceID]
	if !ok {
		return false
	}
	_, has := set[capability]
	return has
}

// Capabilities returns the full capability set announced for a device,
// empty if none is on file.
func (b *Bridge) Capabilities(effectiveDeviceID string) []string {
	b.capMu.RLock()
	defer b.capMu.RUnlock()
	set, ok := b.caps[effectiveDeviceID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
