// Package network holds socket helpers for the local REST API listener.
package network

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP binds addr with SO_REUSEADDR set.
func ListenTCP(ctx context.Context, addr string) (net.Listener, error) {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}
