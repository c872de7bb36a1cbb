// Package webrtc provides the pion API factory and the data channel wrapper
// used by every logical channel of a session.
package webrtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/util"
)

// Factory builds PeerConnections that share one pion API (media engine,
// interceptors and setting engine).
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// Option adjusts the setting engine of a Factory.
type Option func(*webrtc.SettingEngine)

// WithLoopback gathers loopback candidates too, so two peers on the same
// host can connect without any other interface.
func WithLoopback() Option {
	return func(se *webrtc.SettingEngine) {
		se.SetIncludeLoopbackCandidate(true)
	}
}

// NewFactory creates a factory using the given STUN/TURN URLs. An empty list
// restricts ICE to host candidates, which is enough on a LAN.
func NewFactory(iceServers []string, opts ...Option) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}
	for _, opt := range opts {
		opt(&se)
	}

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		config: config,
	}, nil
}

// NewPeerConnection creates a PeerConnection with the factory's configuration.
func (f *Factory) NewPeerConnection() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(f.config)
}
