// Command relay runs a standalone duet signaling relay.
//
// The relay only forwards signaling frames between the two occupants of a
// room; media and data flow peer to peer.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/1ureka/duet/internal/app"
	"github.com/1ureka/duet/internal/config"
	"github.com/1ureka/duet/internal/util"
)

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Default()
	cfg.Mode = config.ModeRelay

	flags := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	flags.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address")
	flags.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		util.LogError("%v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		util.EnableDebug()
	}
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if err := app.RunRelay(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}
