package oslayer

import (
	"testing"
	"time"

	ripserrors "github.com/alxayo/ripserver/internal/errors"
)

func TestBindListenerOnEphemeralPort(t *testing.T) {
	ln, err := BindListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("BindListener: %v", err)
	}
	defer ln.Close()
	if ln.Addr() == nil {
		t.Fatalf("expected a bound address")
	}
}

func TestBindListenerInvalidAddrIsConfigError(t *testing.T) {
	_, err := BindListener("not-a-valid-address")
	if err == nil {
		t.Fatalf("expected an error for an invalid listen address")
	}
	if !ripserrors.IsConfigError(err) {
		t.Fatalf("expected a ConfigError, got %T: %v", err, err)
	}
}

func TestNewTickerFires(t *testing.T) {
	ticker := NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("ticker did not fire within timeout")
	}
}

func TestInstallShutdownSignalNotDoneBeforeSignal(t *testing.T) {
	ctx, stop := InstallShutdownSignal()
	defer stop()

	select {
	case <-ctx.Done():
		t.Fatalf("context should not be done before a signal or explicit stop")
	default:
	}
}
