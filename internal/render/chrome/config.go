package chrome

import (
	"fmt"
	"time"
)

// Config controls how sessions are launched, loaded and printed
type Config struct {
	ChromePath  string        // empty uses the chromedp lookup
	Paper       string        // A3, A4, A5, Letter, Legal
	LoadTimeout time.Duration // upper bound for document load plus network idle
	NetworkIdle time.Duration // quiet period with no requests in flight
}

// DefaultConfig is used in tests to avoid constructing full Config structs
func DefaultConfig() *Config {
	return &Config{
		Paper:       "A4",
		LoadTimeout: 30 * time.Second,
		NetworkIdle: 500 * time.Millisecond,
	}
}

func (c *Config) Validate() error {
	if _, err := LookupPaper(c.Paper); err != nil {
		return err
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("load timeout must be positive")
	}
	if c.NetworkIdle <= 0 {
		return fmt.Errorf("network idle window must be positive")
	}
	if c.NetworkIdle >= c.LoadTimeout {
		return fmt.Errorf("network idle window (%s) must be shorter than load timeout (%s)", c.NetworkIdle, c.LoadTimeout)
	}
	return nil
}
