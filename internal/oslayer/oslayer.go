// Package oslayer wraps the small set of OS-level bindings the broadcast
// engine needs: listener binding, a periodic tick source, and
// signal-driven shutdown. It gathers these calls in one place so
// internal/broadcast does not call net/os/signal directly.
package oslayer

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	ripserrors "github.com/alxayo/ripserver/internal/errors"
)

// BindListener binds a TCP listener on addr. Go's net.Listener is
// non-blocking under the hood already, so unlike the reference
// bind_listener/set_nonblock pair this is a single call.
func BindListener(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ripserrors.NewConfigError(fmt.Sprintf("oslayer.BindListener(%s)", addr), err)
	}
	return ln, nil
}

// NewTicker returns a ticker firing every d. Callers must call Stop when
// done to release the underlying timer.
func NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// InstallShutdownSignal returns a context canceled on SIGINT or SIGTERM,
// and the associated stop function. Calling stop before the signal fires
// releases the underlying signal.Notify registration.
func InstallShutdownSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
