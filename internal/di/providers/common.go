package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// reservationSweepInterval is how often held and pending reservations are
	// checked for expiry.
	reservationSweepInterval = 15 * time.Minute
)
