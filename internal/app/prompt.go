package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/duet/internal/messaging"
	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/session"
	"github.com/1ureka/duet/internal/transfer"
	"github.com/1ureka/duet/internal/util"
)

// actions is the part of a session the prompt drives.
type actions interface {
	SendText(ctx context.Context, text string) (protocol.ChatMessage, error)
	SendFile(ctx context.Context, f transfer.File) (bool, error)
	SendEffect(ctx context.Context, name string) error
	Status(ctx context.Context) (session.Status, error)
}

const helpText = `Commands:
  <text>           send a chat message
  /send <path>     send a file
  /effect <name>   ask the peer to apply an effect
  /status          show the session state
  /quit            leave the room`

// prompt turns console lines into session actions.
type prompt struct {
	actions actions
	// load reads a file for /send; LoadFile when nil.
	load func(path string) (transfer.File, error)
}

// command is a parsed console line. Plain text has an empty name.
type command struct {
	name string
	arg  string
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

// handle runs one line and reports whether the user asked to quit.
func (p *prompt) handle(ctx context.Context, line string) bool {
	cmd := parseCommand(line)

	switch cmd.name {
	case "":
		if cmd.arg == "" {
			return false
		}
		if _, err := p.actions.SendText(ctx, cmd.arg); err != nil {
			util.LogError("failed to send message: %v", err)
		}

	case "send":
		if cmd.arg == "" {
			util.LogWarning("usage: /send <path>")
			return false
		}
		p.sendFile(ctx, cmd.arg)

	case "effect":
		if cmd.arg == "" {
			util.LogWarning("usage: /effect <name>")
			return false
		}
		err := p.actions.SendEffect(ctx, cmd.arg)
		switch {
		case errors.Is(err, messaging.ErrNotConnected):
			util.LogWarning("effects need a connected peer")
		case err != nil:
			util.LogError("failed to send effect: %v", err)
		}

	case "status":
		st, err := p.actions.Status(ctx)
		if err != nil {
			util.LogError("failed to read status: %v", err)
			return false
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(statusTable(st)).Render(); err != nil {
			util.LogError("failed to render status: %v", err)
		}

	case "help":
		pterm.Println(helpText)

	case "quit", "exit":
		return true

	default:
		util.LogWarning("unknown command /%s, type /help", cmd.name)
	}
	return false
}

func (p *prompt) sendFile(ctx context.Context, path string) {
	load := p.load
	if load == nil {
		load = LoadFile
	}
	f, err := load(path)
	if err != nil {
		util.LogError("failed to read %s: %v", path, err)
		return
	}

	queued, err := p.actions.SendFile(ctx, f)
	switch {
	case err != nil:
		util.LogError("failed to send %s: %v", f.Name, err)
	case queued:
		util.LogInfo("%s queued until the peer connects", f.Name)
	default:
		util.LogInfo("sending %s (%s, %s)", f.Name, f.MimeType, strings.TrimSpace(util.FormatBytes(float64(f.Size()))))
	}
}

func statusTable(st session.Status) pterm.TableData {
	features := "-"
	if st.HasPeerFeatures {
		features = fmt.Sprintf("%s, %d-byte chunks, %s", st.PeerFeatures.Agent, st.PeerFeatures.ChunkSize, st.PeerFeatures.BinaryType)
	}
	flags := st.Negotiation.Flags
	return pterm.TableData{
		{"Field", "Value"},
		{"Role", st.Negotiation.Role.String()},
		{"Connection", st.Connection.String()},
		{"Generation", fmt.Sprint(st.Generation)},
		{"Flags", fmt.Sprintf("making=%t ignoring=%t answerPending=%t suppressing=%t",
			flags.MakingOffer, flags.IgnoringOffer, flags.SettingRemoteAnswerPending, flags.SuppressingInitialOffer)},
		{"Pending candidates", fmt.Sprint(st.Negotiation.PendingCandidates)},
		{"Queued", fmt.Sprint(st.Queued)},
		{"Transfers", fmt.Sprint(st.Transfers)},
		{"Receiving", strings.TrimSpace(util.FormatBytes(float64(st.Receiving)))},
		{"Peer", features},
	}
}
