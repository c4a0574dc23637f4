package config

import (
	"fmt"
	"strings"
	"time"
)

// UpstreamConfig describes an HTTP collaborator reachable over JSON/HTTPS.
type UpstreamConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// String returns a string representation of the upstream configuration.
func (c *UpstreamConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Upstream ---\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", c.URL))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	return b.String()
}

func (c *UpstreamConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("upstream URL is not configured")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("upstream URL must start with 'http://' or 'https://': %s", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("upstream timeout is not configured")
	}
	return nil
}
