package config

// Default STUN servers for ICE candidate gathering. No TURN: the relay is only
// used to bootstrap a direct connection.
var defaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Default returns the configuration used when neither a file nor flags
// override a field.
func Default() *Config {
	return &Config{
		Mode:        ModePeer,
		RelayURL:    "ws://127.0.0.1:8080",
		ICEServers:  append([]string(nil), defaultICEServers...),
		DownloadDir: "downloads",
		Listen:      "127.0.0.1:8080",
	}
}
