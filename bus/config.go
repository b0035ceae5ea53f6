package bus

import "fmt"

/*
Connection parameters for one bus connection. Use the builder methods to
override the defaults before calling Connect.
*/
type Config struct {
	host     string
	port     uint
	username string
	password string
	domain   string
}

func NewConfig(domain string) *Config {
	return &Config{
		host:     "127.0.0.1",
		port:     6379,
		username: "default",
		domain:   domain,
	}
}

func (c *Config) Host(h string) *Config {
	c.host = h
	return c
}

func (c *Config) Port(p uint) *Config {
	c.port = p
	return c
}

// Bus-level credentials; the queue store is assumed to sit on a trusted
// internal network, so these scope access, they do not authenticate peers
// to each other.
func (c *Config) Username(u string) *Config {
	c.username = u
	return c
}

func (c *Config) Password(p string) *Config {
	c.password = p
	return c
}

func (c *Config) Domain() string {
	return c.domain
}

func (c *Config) endpoint() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}
