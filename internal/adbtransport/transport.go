package adbtransport

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scryerhq/scryer-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by Transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// screenshotCacheEntry holds the last screenshot taken for a device.
type screenshotCacheEntry struct {
	png []byte
	at  time.Time
}

// Transport exposes the uniform ADB primitive set over adaptively-selected
// backends, plus the unlock-attempt interlock described in the Device
// Connection Manager responsibility.
type Transport struct {
	backends map[BackendKind]Backend
	selector *Selector
	logger   Logger

	mu        sync.Mutex
	shotCache map[string]screenshotCacheEntry

	unlock *unlockTracker
}

// New creates a Transport wired to all three backends and configures the
// unlock-attempt interlock from cfg.
func New(cfg config.ADBConfig, logger Logger) *Transport {
	if logger == nil {
		logger = noopLogger{}
	}

	t := &Transport{
		backends: map[BackendKind]Backend{
			BackendSubprocess:      NewSubprocessBackend(cfg.Binary),
			BackendPersistentShell: NewPersistentShellBackend(cfg.Binary),
			BackendLibrary:         NewLibraryBackend(""),
		},
		selector:  NewSelector(BackendSubprocess, BackendPersistentShell, BackendLibrary),
		logger:    logger,
		shotCache: make(map[string]screenshotCacheEntry),
		unlock:    newUnlockTracker(cfg.MaxUnlockAttempts, cfg.UnlockCooldown),
	}
	return t
}

// timed runs fn against the selected backend for (cid, family), recording
// its latency for future selection decisions.
func (t *Transport) timed(cid string, family PrimitiveFamily, fn func(Backend) error) error {
	kind := t.selector.Pick(cid, family)
	backend, ok := t.backends[kind]
	if !ok {
		return ErrNoBackend
	}

	start := time.Now()
	err := fn(backend)
	t.selector.Record(cid, family, kind, time.Since(start))
	return err
}

// Shell runs a shell command on cid using the adaptively-selected shell
// backend.
func (t *Transport) Shell(ctx context.Context, cid string, cmd string) (string, error) {
	var out string
	err := t.timed(cid, FamilyShell, func(b Backend) error {
		var innerErr error
		out, innerErr = b.Shell(ctx, cid, cmd)
		return innerErr
	})
	return out, err
}

// Screenshot captures the device's current screen as PNG bytes.
//
// It tries the adaptively-preferred backend first; if the result is
// shorter than the sanity floor it falls back to exec-out on the other
// backends, then finally to `screencap -p | base64` over the shell,
// decoded here, which is slower but works even when exec-out is blocked.
// Results are cached per device for screenshotCacheTTL so rapid
// consecutive calls share one capture.
func (t *Transport) Screenshot(ctx context.Context, cid string) ([]byte, error) {
	t.mu.Lock()
	if entry, ok := t.shotCache[cid]; ok && time.Since(entry.at) < screenshotCacheTTL {
		t.mu.Unlock()
		return entry.png, nil
	}
	t.mu.Unlock()

	png, err := t.captureScreenshot(ctx, cid)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.shotCache[cid] = screenshotCacheEntry{png: png, at: time.Now()}
	t.mu.Unlock()

	return png, nil
}

func (t *Transport) captureScreenshot(ctx context.Context, cid string) ([]byte, error) {
	var primary []byte
	err := t.timed(cid, FamilyScreenshot, func(b Backend) error {
		var innerErr error
		primary, innerErr = b.ExecOut(ctx, cid, "screencap -p")
		return innerErr
	})
	if err == nil && len(primary) >= captureSanityFloor {
		return primary, nil
	}

	for kind, backend := range t.backends {
		if kind == t.selector.Pick(cid, FamilyScreenshot) {
			continue
		}
		data, fallbackErr := backend.ExecOut(ctx, cid, "screencap -p")
		if fallbackErr == nil && len(data) >= captureSanityFloor {
			return data, nil
		}
	}

	// Tertiary path: shell output isn't binary-clean, so the PNG is
	// base64-encoded on the device and decoded here; a last resort when
	// exec-out is unavailable entirely.
	shellOut, shellErr := t.Shell(ctx, cid, "screencap -p | base64")
	if shellErr == nil {
		decoded := decodeBase64Lenient(shellOut)
		if len(decoded) >= captureSanityFloor {
			return decoded, nil
		}
	}

	return nil, ErrCaptureFailed
}

// uiDumpRetries is how many times an empty uiautomator dump is retried
// before giving up.
const uiDumpRetries = 2

// DumpUI runs `uiautomator dump` to sdcard then cats it back, retrying on
// empty output, and returns the raw XML with any pre-XML preamble and
// trailing bytes after </hierarchy> stripped.
func (t *Transport) DumpUI(ctx context.Context, cid string) (string, error) {
	const dumpPath = "/sdcard/window_dump.xml"

	var raw string
	for attempt := 0; attempt <= uiDumpRetries; attempt++ {
		if _, err := t.Shell(ctx, cid, "uiautomator dump "+dumpPath); err != nil {
			return "", fmt.Errorf("running uiautomator dump: %w", err)
		}
		out, err := t.Shell(ctx, cid, "cat "+dumpPath)
		if err != nil {
			return "", fmt.Errorf("reading ui dump: %w", err)
		}
		if strings.TrimSpace(out) != "" {
			raw = out
			break
		}
	}

	if strings.TrimSpace(raw) == "" {
		return "", ErrUIDumpEmpty
	}

	return trimToHierarchy(raw), nil
}

// trimToHierarchy strips anything before the opening <?xml declaration and
// anything after the closing </hierarchy> tag, both of which uiautomator
// sometimes prepends/appends (shell banners, trailing null bytes).
func trimToHierarchy(raw string) string {
	if idx := strings.Index(raw, "<?xml"); idx > 0 {
		raw = raw[idx:]
	}
	if idx := strings.LastIndex(raw, "</hierarchy>"); idx >= 0 {
		raw = raw[:idx+len("</hierarchy>")]
	}
	return raw
}

// Tap sends a tap event at the given point and drops the device's cached
// screenshot, since the screen has now changed. DumpUI output is not
// cached, so there is no UI-dump cache to drop.
func (t *Transport) Tap(ctx context.Context, cid string, p Point) error {
	_, err := t.Shell(ctx, cid, fmt.Sprintf("input tap %d %d", p.X, p.Y))
	t.invalidateCaches(cid)
	return err
}

// Swipe sends a swipe event from p1 to p2 over durationMs and drops the
// device's cached screenshot.
func (t *Transport) Swipe(ctx context.Context, cid string, p1, p2 Point, durationMs int) error {
	_, err := t.Shell(ctx, cid, fmt.Sprintf("input swipe %d %d %d %d %d", p1.X, p1.Y, p2.X, p2.Y, durationMs))
	t.invalidateCaches(cid)
	return err
}

// TypeText injects literal text via the shell `input text` primitive.
func (t *Transport) TypeText(ctx context.Context, cid string, text string) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := t.Shell(ctx, cid, "input text "+escaped)
	t.invalidateCaches(cid)
	return err
}

// KeyEvent sends an Android keycode, e.g. 26 for power, 82 for menu.
func (t *Transport) KeyEvent(ctx context.Context, cid string, keycode int) error {
	_, err := t.Shell(ctx, cid, fmt.Sprintf("input keyevent %d", keycode))
	t.invalidateCaches(cid)
	return err
}

func (t *Transport) invalidateCaches(cid string) {
	t.mu.Lock()
	delete(t.shotCache, cid)
	t.mu.Unlock()
}

// Close tears down any persistent per-device resources (shell sessions,
// cached captures) held for cid.
func (t *Transport) Close(cid string) error {
	t.invalidateCaches(cid)
	for _, backend := range t.backends {
		if err := backend.Close(cid); err != nil {
			return err
		}
	}
	return nil
}

const base64Padding = '='

// decodeBase64Lenient is a permissive base64 decoder for the tertiary
// screenshot path, which pipes the encoded form through a shell and may
// pick up trailing whitespace/newlines the standard decoder rejects.
func decodeBase64Lenient(s string) []byte {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == base64Padding:
			return r
		default:
			return -1
		}
	}, s)
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return decoded
}
