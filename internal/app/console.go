package app

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/duet/internal/media"
	"github.com/1ureka/duet/internal/protocol"
	"github.com/1ureka/duet/internal/transfer"
	"github.com/1ureka/duet/internal/util"
)

// Console is the terminal display of a peer session. Received files are
// written into Dir.
type Console struct {
	Dir string
}

// NewConsole returns a console saving files into dir.
func NewConsole(dir string) *Console {
	return &Console{Dir: dir}
}

func (c *Console) ConnectionStateChanged(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		util.LogSuccess("connected to peer")
	case webrtc.PeerConnectionStateFailed:
		util.LogWarning("connection failed, waiting for the peer to rejoin")
	default:
		util.LogDebug("connection state: %s", state)
	}
}

func (c *Console) StreamAttached(s media.Stream) {
	util.LogInfo("receiving %s stream %s (%s)", s.Kind, s.StreamID, s.Codec)
}

func (c *Console) StreamDetached() {
	util.LogInfo("remote stream ended")
}

func (c *Console) MessageReceived(msg protocol.ChatMessage) {
	pterm.Println(pterm.FgCyan.Sprint("peer › ") + msg.Text)
}

func (c *Console) DeliveryConfirmed(id int64, delayed bool) {
	if delayed {
		util.LogWarning("delivery of %d confirmed late", id)
		return
	}
	util.LogDebug("delivery of %d confirmed", id)
}

func (c *Console) FileReceived(a transfer.Artifact) {
	path, err := c.save(a)
	if err != nil {
		util.LogError("failed to save %s: %v", a.Metadata.Name, err)
		return
	}
	util.LogSuccess("received %s (%s) → %s",
		a.Metadata.Name, strings.TrimSpace(util.FormatBytes(float64(len(a.Data)))), path)
}

func (c *Console) TransferFailed(name string, err error) {
	util.LogWarning("transfer %s failed: %v", name, err)
}

func (c *Console) PeerEffect(name string) {
	pterm.Println(pterm.FgMagenta.Sprintf("✦ peer sent effect %q", name))
}

func (c *Console) PeerFeatures(f protocol.Features) {
	util.LogDebug("peer features: agent=%q chunk=%d binary=%s", f.Agent, f.ChunkSize, f.BinaryType)
}

// ---------------------------------------------------------------------------
// Files
// ---------------------------------------------------------------------------

// save writes an artifact into the download directory under a name that
// does not clobber an existing file.
func (c *Console) save(a transfer.Artifact) (string, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return "", err
	}

	name := safeName(a.Metadata.Name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(c.Dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(a.Data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// safeName strips any directory part a peer may have put in a file name.
func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "file"
	}
	return name
}

// LoadFile reads path into a transfer file, guessing its MIME type.
func LoadFile(path string) (transfer.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transfer.File{}, err
	}
	name := filepath.Base(path)
	return transfer.File{
		Name:     name,
		MimeType: DetectMimeType(name, data),
		Payload:  data,
	}, nil
}

// DetectMimeType uses the extension when it is known and sniffs the content
// otherwise.
func DetectMimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
