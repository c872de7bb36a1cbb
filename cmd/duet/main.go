// Command duet is the CLI entry point.
//
// duet connects two peers in a numbered room through a signaling relay and
// then talks to the peer directly over WebRTC: chat with delivery receipts,
// file transfers, effects and an optional RTP video feed. The same binary
// also runs the relay.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags or a duet.toml file in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/duet/internal/app"
	"github.com/1ureka/duet/internal/config"
	"github.com/1ureka/duet/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, interactive, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("duet v%s", version))
	pterm.Println()

	if interactive {
		askConfig(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	switch cfg.Mode {
	case config.ModeRelay:
		err = app.RunRelay(ctx, cfg)
	default:
		err = app.RunPeer(ctx, cfg, "duet/"+version, os.Stdin)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("bye")
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// parseFlags layers CLI flags over the config file. It reports interactive
// when neither set a mode.
func parseFlags(args []string) (*config.Config, bool, error) {
	flags := pflag.NewFlagSet("duet", pflag.ContinueOnError)
	configPath := flags.String("config", config.FileName, "path to the TOML config file")
	mode := flags.String("mode", "", "mode: peer or relay")
	relay := flags.String("relay", "", "relay base URL (peer), e.g. ws://127.0.0.1:8080")
	room := flags.String("room", "", "7-digit room to join (peer); generated when empty")
	ice := flags.StringSlice("ice", nil, "STUN/TURN server URLs (peer); replaces the defaults")
	downloadDir := flags.String("download-dir", "", "directory for received files (peer)")
	mediaAddr := flags.String("media", "", "UDP address of a local RTP video feed (peer)")
	loopback := flags.Bool("loopback", false, "gather loopback candidates, for two peers on one machine (peer)")
	listen := flags.String("listen", "", "listen address (relay)")
	debug := flags.Bool("debug", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		fmt.Println(version)
		return nil, false, pflag.ErrHelp
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, false, err
	}
	_, statErr := os.Stat(*configPath)
	fromFile := !errors.Is(statErr, fs.ErrNotExist)

	if flags.Changed("mode") {
		cfg.Mode = config.Mode(strings.ToLower(*mode))
	}
	if flags.Changed("relay") {
		cfg.RelayURL = *relay
	}
	if flags.Changed("room") {
		cfg.Room = *room
	}
	if flags.Changed("ice") {
		cfg.ICEServers = *ice
	}
	if flags.Changed("download-dir") {
		cfg.DownloadDir = *downloadDir
	}
	if flags.Changed("media") {
		cfg.MediaRTPAddr = *mediaAddr
	}
	if flags.Changed("loopback") {
		cfg.Loopback = *loopback
	}
	if flags.Changed("listen") {
		cfg.Listen = *listen
	}
	if flags.Changed("debug") {
		cfg.Debug = *debug
	}

	return cfg, !fromFile && !flags.Changed("mode"), nil
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askConfig fills cfg from interactive prompts. Empty answers keep the
// current values.
func askConfig(cfg *config.Config) {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Peer  - Join a room", "Relay - Serve rooms for peers"}).
		WithDefaultText("Select a mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Relay") {
		cfg.Mode = config.ModeRelay
		cfg.Listen = askText(fmt.Sprintf("Listen address (default %s)", cfg.Listen), cfg.Listen)
		return
	}

	cfg.Mode = config.ModePeer
	cfg.RelayURL = askText(fmt.Sprintf("Relay URL (default %s)", cfg.RelayURL), cfg.RelayURL)
	cfg.Room = askRoom()
}

// askText prompts once and falls back to def on an empty answer.
func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		Show()
	pterm.Println()

	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return def
}

// askRoom prompts until the answer is empty or a valid room.
func askRoom() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room (7 digits, empty to create one)").
			Show()
		pterm.Println()

		room := strings.TrimSpace(raw)
		if room == "" || config.ValidRoom(room) {
			return room
		}

		util.LogWarning("invalid room: must be exactly 7 digits")
	}
}
