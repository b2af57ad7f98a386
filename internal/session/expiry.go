package session

import "time"

// WarningThreshold is how close to expiry the one-time warning fires.
const WarningThreshold = 5 * time.Minute

// ExpiryClock owns the start time, expiry time and countdown of a session.
//
// It holds no timers of its own: the session loop calls Warn and Expire on
// every tick with the current time, so a tick costs O(1) no matter how long
// the session runs. The warning and the expiry each fire once per expiry
// period; Extend starts a new period.
type ExpiryClock struct {
	startedAt time.Time
	expiresAt time.Time
	period    time.Duration
	warned    bool
	expired   bool
}

// Start sets the session start to now and the expiry to now+d.
// Negative durations are treated as zero.
func (c *ExpiryClock) Start(now time.Time, d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.startedAt = now
	c.expiresAt = now.Add(d)
	c.period = d
	c.warned = false
	c.expired = false
}

// Extend resets the expiry to now+d and clears the warning and expiry flags.
// The start time is kept, so the expiry never precedes it.
func (c *ExpiryClock) Extend(now time.Time, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if now.Before(c.startedAt) {
		now = c.startedAt
	}
	c.expiresAt = now.Add(d)
	c.period = d
	c.warned = false
	c.expired = false
}

// Remaining returns max(0, expiry-now). It stays pinned at zero once the
// clock has expired, until Extend is called.
func (c *ExpiryClock) Remaining(now time.Time) time.Duration {
	if c.expired {
		return 0
	}
	r := c.expiresAt.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// Warn reports whether the remaining time just crossed into the warning
// window. It returns true at most once per expiry period.
func (c *ExpiryClock) Warn(now time.Time) bool {
	if c.warned || c.expired {
		return false
	}
	r := c.Remaining(now)
	if r > 0 && r <= WarningThreshold {
		c.warned = true
		return true
	}
	return false
}

// Expire reports whether the clock just reached its expiry. It returns true
// at most once per expiry period and pins Remaining at zero afterwards.
func (c *ExpiryClock) Expire(now time.Time) bool {
	if c.expired {
		return false
	}
	if now.Before(c.expiresAt) {
		return false
	}
	c.expired = true
	return true
}

func (c *ExpiryClock) StartedAt() time.Time  { return c.startedAt }
func (c *ExpiryClock) ExpiresAt() time.Time  { return c.expiresAt }
func (c *ExpiryClock) Period() time.Duration { return c.period }
func (c *ExpiryClock) Warned() bool          { return c.warned }
func (c *ExpiryClock) Expired() bool         { return c.expired }
