package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidRoom(t *testing.T) {
	testCases := []struct {
		room string
		want bool
	}{
		{"1234567", true},
		{"0000000", true},
		{"123456", false},
		{"12345678", false},
		{"12a4567", false},
		{"", false},
	}

	for _, tc := range testCases {
		if got := ValidRoom(tc.room); got != tc.want {
			t.Errorf("ValidRoom(%q) = %v, want %v", tc.room, got, tc.want)
		}
	}
}

func TestNewRoomShape(t *testing.T) {
	for range 50 {
		room := NewRoom()
		if !ValidRoom(room) {
			t.Fatalf("NewRoom() = %q, not a valid room", room)
		}
	}
}

func TestEnsureRoom(t *testing.T) {
	cfg := Default()
	cfg.Room = "7654321"
	if cfg.EnsureRoom() {
		t.Error("EnsureRoom replaced a valid room")
	}
	if cfg.Room != "7654321" {
		t.Errorf("Room = %q, want 7654321", cfg.Room)
	}

	cfg.Room = "nope"
	if !cfg.EnsureRoom() {
		t.Error("EnsureRoom kept an invalid room")
	}
	if !ValidRoom(cfg.Room) {
		t.Errorf("generated room %q is invalid", cfg.Room)
	}
}

func TestRoomURL(t *testing.T) {
	testCases := []struct {
		relay string
		want  string
	}{
		{"ws://127.0.0.1:8080", "ws://127.0.0.1:8080/ws/1234567"},
		{"https://relay.example.com/", "wss://relay.example.com/ws/1234567"},
		{"http://relay.example.com", "ws://relay.example.com/ws/1234567"},
		{"relay.example.com:9000", "ws://relay.example.com:9000/ws/1234567"},
	}

	for _, tc := range testCases {
		cfg := &Config{RelayURL: tc.relay, Room: "1234567"}
		got, err := cfg.RoomURL()
		if err != nil {
			t.Fatalf("RoomURL(%q): %v", tc.relay, err)
		}
		if got != tc.want {
			t.Errorf("RoomURL(%q) = %q, want %q", tc.relay, got, tc.want)
		}
	}

	cfg := &Config{RelayURL: "ftp://relay.example.com", Room: "1234567"}
	if _, err := cfg.RoomURL(); err == nil {
		t.Error("expected an error for ftp scheme")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.Room = "12"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("Validate() = %v, want ErrInvalidRoom", err)
	}

	cfg = Default()
	cfg.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir on empty dir: %v", err)
	}
	if cfg.RelayURL != Default().RelayURL {
		t.Errorf("RelayURL = %q, want default", cfg.RelayURL)
	}

	content := `
mode = "relay"
listen = ":9999"
ice_servers = []
debug = true
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err = LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	if cfg.Mode != ModeRelay || cfg.Listen != ":9999" || !cfg.Debug {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.ICEServers) != 0 {
		t.Errorf("ICEServers = %v, want empty", cfg.ICEServers)
	}
	if cfg.DownloadDir != "downloads" {
		t.Errorf("DownloadDir = %q, want default kept", cfg.DownloadDir)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("mode = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromDir(dir); err == nil {
		t.Error("expected a parse error")
	}
}
