package imap

import (
	"strconv"
	"strings"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// Default configuration values.
const (
	DefaultServer  = "mail.btinternet.com"
	DefaultPort    = 993
	DefaultMailbox = "INBOX"
	DefaultPrefix  = "imap"
)

// Config holds IMAP source configuration.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	Mailbox  string
	// TLS selects implicit TLS. Plain connections are for local test servers.
	TLS bool
	// IDPrefix prefixes message IDs, e.g. "bt" gives "bt_1234".
	IDPrefix string
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return c.Server + ":" + strconv.Itoa(c.Port)
}

// ParseConfig extracts configuration from a source definition.
func ParseConfig(def domain.SourceDefinition) (*Config, error) {
	cfg := &Config{
		Server:   DefaultServer,
		Port:     DefaultPort,
		Mailbox:  DefaultMailbox,
		TLS:      true,
		IDPrefix: DefaultPrefix,
		Username: def.Config["username"],
		Password: def.Config["password"],
	}

	if val := strings.TrimSpace(def.Config["imap_server"]); val != "" {
		cfg.Server = val
	}
	if val := def.Config["port"]; val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 || n > 65535 {
			return nil, domain.Validationf("port must be 1-65535, got %q", val)
		}
		cfg.Port = n
	}
	if val := strings.TrimSpace(def.Config["mailbox"]); val != "" {
		cfg.Mailbox = val
	}
	if val := def.Config["tls"]; val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, domain.Validationf("tls must be true or false, got %q", val)
		}
		cfg.TLS = b
	}
	if val := strings.TrimSpace(def.Config["id_prefix"]); val != "" {
		cfg.IDPrefix = val
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, domain.Validationf("username and password are required")
	}
	return cfg, nil
}
