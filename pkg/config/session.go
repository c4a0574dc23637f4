package config

import (
	"fmt"
	"log"
	"strings"
	"time"
)

const defaultSessionCookie = "cart_session"
const defaultSessionTTL = 7 * 24 * time.Hour

// SessionConfig controls the anonymous cart session tokens: the cookie they
// travel in and how long an unclaimed token stays valid.
type SessionConfig struct {
	CookieName string        `koanf:"cookiename"`
	TTL        time.Duration `koanf:"ttl"`
}

// String returns a string representation of the session configuration.
func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  cookiename: %s\n", c.CookieName))
	b.WriteString(fmt.Sprintf("  ttl: %s\n", c.TTL))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	if c.CookieName == "" {
		log.Println("Using default value for session cookiename")
		c.CookieName = defaultSessionCookie
	}
	if c.TTL <= 0 {
		log.Println("Using default value for session ttl")
		c.TTL = defaultSessionTTL
	}
	return nil
}
