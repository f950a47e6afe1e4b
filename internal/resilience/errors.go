package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/exposure-cli/internal/fault"
)

// IsTimeout reports whether err is a deadline failure: a fault.KindTimeout
// error, context.DeadlineExceeded, a network timeout or a pgconn timeout.
// Cancellation by the caller is not a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if fault.Is(err, fault.KindTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return pgconn.Timeout(err)
}
