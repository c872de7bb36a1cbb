package app

import (
	"context"

	"github.com/1ureka/duet/internal/config"
	"github.com/1ureka/duet/internal/signaling"
	"github.com/1ureka/duet/internal/util"
)

// RunRelay serves the signaling relay on cfg.Listen until ctx is cancelled.
func RunRelay(ctx context.Context, cfg *config.Config) error {
	util.LogInfo("relay rooms are served at ws://%s/ws/{room}", cfg.Listen)
	return signaling.NewServer().ListenAndServe(ctx, cfg.Listen)
}
