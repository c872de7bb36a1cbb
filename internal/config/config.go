// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Mode represents the process role selected on the command line.
type Mode string

const (
	ModePeer  Mode = "peer"
	ModeRelay Mode = "relay"
)

// ErrInvalidRoom is returned when a room name does not match the relay's
// namespace shape.
var ErrInvalidRoom = errors.New("room must be exactly 7 digits")

// Config stores every parameter gathered from the config file, the CLI flags
// or the interactive prompts.
type Config struct {
	Mode Mode `toml:"mode"`

	// Peer
	RelayURL     string   `toml:"relay_url"`      // base URL of the relay, e.g. ws://127.0.0.1:8080
	Room         string   `toml:"room"`           // 7-digit room; generated when empty
	ICEServers   []string `toml:"ice_servers"`    // STUN/TURN URLs; empty means host candidates only
	DownloadDir  string   `toml:"download_dir"`   // where received files are written
	MediaRTPAddr string   `toml:"media_rtp_addr"` // UDP address carrying the local RTP feed; empty disables media
	Loopback     bool     `toml:"loopback"`       // gather loopback candidates, for two peers on one machine

	// Relay
	Listen string `toml:"listen"`

	Debug bool `toml:"debug"`
}

// Validate checks the fields required by the selected mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePeer:
		if c.RelayURL == "" {
			return errors.New("missing relay URL")
		}
		if c.Room != "" && !ValidRoom(c.Room) {
			return fmt.Errorf("%w: %q", ErrInvalidRoom, c.Room)
		}
	case ModeRelay:
		if c.Listen == "" {
			return errors.New("missing listen address")
		}
	default:
		return fmt.Errorf("invalid mode %q: must be 'peer' or 'relay'", c.Mode)
	}
	return nil
}

// RoomURL builds the WebSocket URL of the configured room on the relay.
// http(s) schemes are mapped to ws(s); a bare host defaults to ws.
func (c *Config) RoomURL() (string, error) {
	raw := strings.TrimSpace(c.RelayURL)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", c.RelayURL)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay URL scheme: %s", u.Scheme)
	}

	return fmt.Sprintf("%s://%s/ws/%s", u.Scheme, u.Host, c.Room), nil
}
