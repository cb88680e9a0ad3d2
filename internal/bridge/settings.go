package bridge

import (
	"net"
	"strconv"
	"time"

	"github.com/kingrea/linaje/internal/config"
)

const (
	// DefaultAddr keeps the bridge on loopback.
	DefaultAddr = "127.0.0.1:8765"
	// DefaultMaxBody caps one request body.
	DefaultMaxBody int64 = 256 << 10
	DefaultTimeout       = 15 * time.Second
)

// Settings is the resolved listener configuration.
type Settings struct {
	Enabled bool
	// Addr is the host:port to bind. Port 0 picks a free port.
	Addr    string
	MaxBody int64
	// Timeout bounds request reads and response writes. Idle keep-alive
	// connections get four times as long.
	Timeout time.Duration
}

// SettingsFromConfig projects the bridge section of the project config.
// LINAJE_BRIDGE_* overrides were already applied when cfg was loaded.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{Enabled: true}
	if cfg != nil {
		b := cfg.Project.Bridge
		if b.Enabled != nil {
			s.Enabled = *b.Enabled
		}
		if b.Host != "" && b.Port > 0 {
			s.Addr = net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
		}
		s.MaxBody = int64(b.MaxBodyKB) << 10
		s.Timeout = cfg.BridgeTimeout()
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.MaxBody <= 0 {
		s.MaxBody = DefaultMaxBody
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// URL is the base URL recorders post to.
func (s Settings) URL() string {
	return "http://" + s.Addr
}
