// Package app contains the top-level orchestration for the peer and relay
// modes.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/1ureka/duet/internal/config"
	"github.com/1ureka/duet/internal/media"
	"github.com/1ureka/duet/internal/session"
	"github.com/1ureka/duet/internal/signaling"
	"github.com/1ureka/duet/internal/util"
	rtc "github.com/1ureka/duet/internal/webrtc"
)

var _ session.Display = (*Console)(nil)

// RunPeer joins cfg.Room on the relay and runs the console until the user
// quits, ctx is cancelled or the relay connection drops. Commands are read
// line by line from in.
func RunPeer(ctx context.Context, cfg *config.Config, agent string, in io.Reader) error {
	// ── 1. Connection factory & media ──────────────────────────────────
	var opts []rtc.Option
	if cfg.Loopback {
		opts = append(opts, rtc.WithLoopback())
	}
	factory, err := rtc.NewFactory(cfg.ICEServers, opts...)
	if err != nil {
		return fmt.Errorf("failed to create connection factory: %w", err)
	}

	var source media.Source = media.None{}
	if cfg.MediaRTPAddr != "" {
		source = &media.RTPSource{Addr: cfg.MediaRTPAddr}
	}

	// ── 2. Room ────────────────────────────────────────────────────────
	if cfg.EnsureRoom() {
		util.LogInfo("no room given, generated %s", cfg.Room)
	}
	roomURL, err := cfg.RoomURL()
	if err != nil {
		return err
	}

	pterm.DefaultBox.WithTitle("duet").Println(
		fmt.Sprintf("Room  : %s\nRelay : %s\n\nShare the room with your peer.\nType /help for commands.", cfg.Room, roomURL))

	// ── 3. Join ────────────────────────────────────────────────────────
	sess, err := session.Join(ctx, signaling.WebSocketConnector(ctx, roomURL), session.Options{
		Factory: factory,
		Media:   source,
		Display: NewConsole(cfg.DownloadDir),
		Agent:   agent,
	})
	if err != nil {
		return err
	}
	defer sess.Leave()

	util.StartStatsReporter(ctx)
	util.LogSuccess("joined room %s, waiting for a peer", cfg.Room)

	// ── 4. Command loop ────────────────────────────────────────────────
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-sess.Done():
				return
			}
		}
	}()

	p := &prompt{actions: sess}
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				sess.Leave()
				return nil
			}
			if quit := p.handle(ctx, line); quit {
				sess.Leave()
				return nil
			}
		case <-sess.Done():
			if err := sess.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}
