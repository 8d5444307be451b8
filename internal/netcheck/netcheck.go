// Package netcheck decides whether the drive API is reachable before an
// operation is attempted.
package netcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 3 * time.Second

// DefaultFreshness is how long a successful probe is trusted without probing again.
const DefaultFreshness = 2 * time.Second

// Checker probes a URL with HEAD requests. Any HTTP response, including an
// error status, counts as online; only transport failures count as offline.
type Checker struct {
	client    *http.Client
	url       string
	timeout   time.Duration
	freshness time.Duration
	logger    *zap.Logger

	mu       sync.RWMutex
	online   bool
	lastSeen time.Time
}

// New creates a checker for url. A nil client uses http.DefaultClient.
func New(client *http.Client, url string, logger *zap.Logger) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{client: client, url: url, timeout: DefaultTimeout, freshness: DefaultFreshness, logger: logger, online: true}
}

// WithTimeout overrides the probe timeout.
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	c.timeout = d
	return c
}

// WithFreshness overrides how long a successful probe is reused. Zero probes
// on every call.
func (c *Checker) WithFreshness(d time.Duration) *Checker {
	c.freshness = d
	return c
}

// Online probes the API host, unless it answered within the freshness window.
func (c *Checker) Online(ctx context.Context) bool {
	if online, seen := c.LastKnown(); online && !seen.IsZero() && time.Since(seen) < c.freshness {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.url, nil)
	if err != nil {
		c.setOnline(false, err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.setOnline(false, err)
		return false
	}
	resp.Body.Close()
	c.setOnline(true, nil)
	return true
}

// LastKnown returns the result of the most recent probe and when it succeeded.
func (c *Checker) LastKnown() (bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online, c.lastSeen
}

func (c *Checker) setOnline(online bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			c.logger.Info("drive api is reachable again", zap.String("url", c.url))
		} else {
			c.logger.Warn("drive api unreachable", zap.String("url", c.url), zap.Error(err))
		}
	}
	c.online = online
	if online {
		c.lastSeen = time.Now()
	}
}

// Always is a checker with a fixed answer, used for backends that never leave
// the process.
type Always bool

func (a Always) Online(context.Context) bool { return bool(a) }
