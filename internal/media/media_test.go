package media

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func TestNoneHasNoTrack(t *testing.T) {
	track, err := None{}.Acquire(context.Background())
	if err != nil || track != nil {
		t.Fatalf("None.Acquire() = %v, %v; want nil, nil", track, err)
	}
}

func TestRTPSourceForwardsPackets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &RTPSource{Addr: "127.0.0.1:0"}
	track, err := src.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	static, ok := track.(*webrtc.TrackLocalStaticRTP)
	if !ok {
		t.Fatalf("track is %T", track)
	}
	if got := static.Codec().MimeType; got != webrtc.MimeTypeVP8 {
		t.Errorf("codec = %s, want %s", got, webrtc.MimeTypeVP8)
	}

	conn, err := net.Dial("udp", src.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 1, Timestamp: 3000, SSRC: 42},
		Payload: []byte{0x10, 0x02, 0x00},
	}
	data, err := pkt.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for src.Packets() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("packet was never forwarded")
		}
		if _, err := conn.Write(data); err != nil {
			t.Fatal(err)
		}
		// Garbage is skipped without stopping the pump.
		_, _ = conn.Write([]byte{0x00})
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRTPSourceBadAddress(t *testing.T) {
	src := &RTPSource{Addr: "not an address"}
	if _, err := src.Acquire(context.Background()); err == nil {
		t.Fatal("expected an error for an invalid address")
	}
}
