package truetime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"
)

// Clock stamps mutations.
type Clock interface {
	Now() time.Time
}

// Interval is a window the true time is known to lie in.
type Interval struct {
	Earliest time.Time
	Latest   time.Time
}

// Local is the host clock.
type Local struct{}

func (Local) Now() time.Time { return time.Now() }

// Micros returns the storage-engine write timestamp for t: microseconds since
// the Unix epoch.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// QueryFunc asks a time server for the current offset and round-trip time.
type QueryFunc func(server string) (offset, rtt time.Duration, err error)

func ntpQuery(server string) (time.Duration, time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, 0, err
	}
	return resp.ClockOffset, resp.RTT, nil
}

// NTPClock is the host clock corrected by the offset last measured against an
// NTP server. Until the first successful sync it behaves like Local.
type NTPClock struct {
	server string
	query  QueryFunc
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	offset      time.Duration
	uncertainty time.Duration
	synced      bool
}

// NewNTPClock returns a clock synced against server.
// If the provided server is empty, it defaults to "time.google.com".
func NewNTPClock(server string, logger *zap.Logger) *NTPClock {
	return newNTPClock(server, logger, ntpQuery, time.Now)
}

func newNTPClock(server string, logger *zap.Logger, q QueryFunc, now func() time.Time) *NTPClock {
	if server == "" {
		server = "time.google.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NTPClock{server: server, query: q, logger: logger, now: now}
}

// Now returns the corrected time.
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

// NowInterval returns an interval within which the true time lies, using half
// the last round trip as the uncertainty.
func (c *NTPClock) NowInterval() Interval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.now().Add(c.offset)
	return Interval{Earliest: t.Add(-c.uncertainty), Latest: t.Add(c.uncertainty)}
}

// Sync queries the server once and updates the offset.
func (c *NTPClock) Sync() error {
	offset, rtt, err := c.query(c.server)
	if err != nil {
		c.logger.Warn("ntp query failed", zap.String("server", c.server), zap.Error(err))
		return err
	}
	c.mu.Lock()
	c.offset = offset
	c.uncertainty = rtt / 2
	c.synced = true
	c.mu.Unlock()

	if offset.Abs() > 10*time.Millisecond {
		c.logger.Warn("Clock is out of the acceptable sync range", zap.Duration("offset", offset))
	}
	c.logger.Debug("Adjusted local clock", zap.Duration("offset", offset), zap.Duration("rtt", rtt))
	return nil
}

// Synced reports whether at least one Sync succeeded.
func (c *NTPClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Run syncs every interval until ctx is done.
func (c *NTPClock) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("truetime: sync interval must be positive, got %s", interval)
	}
	c.logger.Info("Starting NTP clock", zap.String("server", c.server), zap.Duration("interval", interval))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		_ = c.Sync()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Sync()
			}
		}
	}()
	return nil
}

// Monotonic wraps a clock so that successive calls never go backwards, which
// keeps write timestamps of one writer strictly increasing.
type Monotonic struct {
	clock Clock
	mu    sync.Mutex
	last  time.Time
}

func NewMonotonic(c Clock) *Monotonic {
	return &Monotonic{clock: c}
}

func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.clock.Now()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}
