package hub

import (
	"context"
	"time"

	"github.com/airdcpp-go/core/internal/socket"
)

// hbriTimeout and hbriPoll reproduce HBRIValidation.cpp's busy-wait
// contract verbatim: endTime := now+10000; for !waitConnected(100) &&
// endTime >= now.
const (
	hbriTimeout = 10 * time.Second
	hbriPoll    = 100 * time.Millisecond
)

// ValidateHBRI opens a side connection on the alternate address family
// (IPv4 if the primary hub connection is IPv6, as primaryIPv6 reports, or
// vice versa) to addr and confirms it can connect within hbriTimeout, used
// to verify a hub's claimed dual-stack reachability before trusting its
// advertised address.
func ValidateHBRI(ctx context.Context, addr string, primaryIPv6 bool) (bool, error) {
	deadline := time.Now().Add(hbriTimeout)
	network := "tcp6"
	if primaryIPv6 {
		network = "tcp4"
	}

	for time.Now().Before(deadline) {
		dialCtx, cancel := context.WithTimeout(ctx, hbriPoll)
		conn, err := socket.Dial(dialCtx, network, addr)
		cancel()
		if err == nil {
			conn.Close()
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(hbriPoll):
		}
	}
	return false, nil
}
