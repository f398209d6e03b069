package connection

import (
	"fmt"
	"strings"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 6379
	DefaultClientName = "qredis"
	DefaultKeyFilter  = "*"
	DefaultKeySplit   = ".:"
	DefaultTimeout    = 30
)

// SSHConfig holds SSH tunnel details
type SSHConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	KeyPath  string `json:"keyPath"`
}

// ConnectionConfig holds Redis connection details including SSH and key tree options
type ConnectionConfig struct {
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Socket     string    `json:"socket"` // unix socket path, takes precedence over host:port
	Password   string    `json:"password"`
	RedisDB    int       `json:"redisDB"`
	ClientName string    `json:"clientName"`
	Timeout    int       `json:"timeout"`   // seconds
	KeyFilter  string    `json:"keyFilter"` // glob used to enumerate keys for the tree
	KeySplit   string    `json:"keySplit"`  // delimiter characters for the tree
	UseSSH     bool      `json:"useSSH"`
	SSH        SSHConfig `json:"ssh"`
}

// WithDefaults returns a copy with empty fields replaced by their defaults.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if strings.TrimSpace(c.Host) == "" && c.Socket == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 && c.Socket == "" {
		c.Port = DefaultPort
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KeyFilter == "" {
		c.KeyFilter = DefaultKeyFilter
	}
	if c.KeySplit == "" {
		c.KeySplit = DefaultKeySplit
	}
	if c.UseSSH && c.SSH.Port <= 0 {
		c.SSH.Port = 22
	}
	return c
}

// Address returns the socket path for unix connections, host:port otherwise
func (c ConnectionConfig) Address() string {
	if c.Socket != "" {
		return c.Socket
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Network returns the go-redis network name for the config
func (c ConnectionConfig) Network() string {
	if c.Socket != "" {
		return "unix"
	}
	return "tcp"
}

// QueryResult is the standard response format for presentation layer methods
type QueryResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
