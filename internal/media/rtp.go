package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/duet/internal/util"
)

const (
	defaultMTU   = 1500
	readInterval = 500 * time.Millisecond
)

// RTPSource publishes RTP packets received on a UDP address, for example
// from `ffmpeg ... -f rtp rtp://127.0.0.1:5004`, as the local video track.
type RTPSource struct {
	Addr string
	// MimeType of the incoming stream; VP8 when empty.
	MimeType string
	MTU      int

	mu      sync.Mutex
	local   net.Addr
	packets atomic.Int64
}

// Acquire binds the UDP address and starts forwarding packets to the
// returned track until ctx is cancelled.
func (s *RTPSource) Acquire(ctx context.Context) (webrtc.TrackLocal, error) {
	mime := s.MimeType
	if mime == "" {
		mime = webrtc.MimeTypeVP8
	}
	mtu := s.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve media address %q: %w", s.Addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on media address %q: %w", s.Addr, err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, "video", "duet")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}

	s.mu.Lock()
	s.local = conn.LocalAddr()
	s.mu.Unlock()

	util.LogInfo("publishing %s RTP from %s", mime, conn.LocalAddr())
	go s.pump(ctx, conn, track, mtu)
	return track, nil
}

// LocalAddr returns the bound UDP address once acquired.
func (s *RTPSource) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Packets returns the number of packets forwarded so far.
func (s *RTPSource) Packets() int64 { return s.packets.Load() }

func (s *RTPSource) pump(ctx context.Context, conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, mtu int) {
	defer conn.Close()

	buf := make([]byte, mtu)
	for {
		// keep the read unblocked so cancellation is noticed
		_ = conn.SetReadDeadline(time.Now().Add(readInterval))

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					util.LogDebug("media pump stopped")
					return
				}
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				util.LogError("media read: %v", err)
			}
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// not RTP
			continue
		}
		if err := track.WriteRTP(&pkt); err != nil {
			util.LogError("media write: %v", err)
			return
		}
		s.packets.Add(1)
	}
}
