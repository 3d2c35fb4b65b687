package adbtransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
)

// defaultServerAddr is where the local adb server listens.
const defaultServerAddr = "127.0.0.1:5037"

// LibraryBackend talks to the local adb server's TCP protocol directly,
// skipping the adb CLI binary. Each call opens a short-lived connection,
// selects the device transport with "host:transport:<cid>", then issues a
// service request ("shell:<cmd>" or "exec:<cmd>") following the ADB wire
// protocol: a 4-hex-digit ASCII length prefix followed by the payload, a
// 4-byte "OKAY"/"FAIL" status, and (for FAIL) a length-prefixed error
// message.
//
// This avoids forking adb for every call, which is where SubprocessBackend
// spends most of its time on chatty command sequences.
type LibraryBackend struct {
	serverAddr string
	dialer     net.Dialer
}

// NewLibraryBackend creates a backend that speaks the adb server protocol
// directly over TCP. addr is typically empty, which selects the default
// local adb server address.
func NewLibraryBackend(addr string) *LibraryBackend {
	if addr == "" {
		addr = defaultServerAddr
	}
	return &LibraryBackend{serverAddr: addr}
}

func (b *LibraryBackend) Kind() BackendKind { return BackendLibrary }

func (b *LibraryBackend) dial(ctx context.Context) (net.Conn, error) {
	d := b.dialer
	if deadline, ok := ctx.Deadline(); ok {
		d.Deadline = deadline
	}
	conn, err := d.DialContext(ctx, "tcp", b.serverAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing adb server: %w", err)
	}
	return conn, nil
}

// sendMessage writes a length-prefixed ADB protocol message and waits for
// the OKAY/FAIL status response.
func sendMessage(conn net.Conn, r *bufio.Reader, payload string) error {
	if _, err := fmt.Fprintf(conn, "%04x%s", len(payload), payload); err != nil {
		return fmt.Errorf("writing adb message: %w", err)
	}
	return readStatus(r)
}

func readStatus(r *bufio.Reader) error {
	status := make([]byte, 4)
	if _, err := io.ReadFull(r, status); err != nil {
		return fmt.Errorf("reading adb status: %w", err)
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		lenHex := make([]byte, 4)
		if _, err := io.ReadFull(r, lenHex); err != nil {
			return fmt.Errorf("reading adb failure length: %w", err)
		}
		var n int
		if _, err := fmt.Sscanf(string(lenHex), "%04x", &n); err != nil {
			return fmt.Errorf("parsing adb failure length: %w", err)
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(r, msg); err != nil {
			return fmt.Errorf("reading adb failure message: %w", err)
		}
		return fmt.Errorf("adb server: %s", msg)
	default:
		return fmt.Errorf("unexpected adb status %q", status)
	}
}

func (b *LibraryBackend) openService(ctx context.Context, cid, service string) (net.Conn, *bufio.Reader, error) {
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	r := bufio.NewReader(conn)
	if err := sendMessage(conn, r, "host:transport:"+cid); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("selecting transport for %s: %w", cid, err)
	}
	if err := sendMessage(conn, r, service); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening service %q: %w", service, err)
	}
	return conn, r, nil
}

// Shell opens the "shell:<cmd>" service and reads its output until EOF.
func (b *LibraryBackend) Shell(ctx context.Context, cid string, cmd string) (string, error) {
	out, err := b.runService(ctx, "shell:"+cmd, cid)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ExecOut opens the "exec:<cmd>" service, which streams raw bytes
// unmodified - the correct choice for binary payloads such as PNGs.
func (b *LibraryBackend) ExecOut(ctx context.Context, cid string, cmd string) ([]byte, error) {
	return b.runService(ctx, "exec:"+cmd, cid)
}

func (b *LibraryBackend) runService(ctx context.Context, service, cid string) ([]byte, error) {
	conn, r, err := b.openService(ctx, cid, service)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading service output: %w", err)
	}
	return out, nil
}

// Close is a no-op: LibraryBackend opens a fresh connection per call and
// holds no per-device state between them.
func (b *LibraryBackend) Close(cid string) error { return nil }
