package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/la2go/internal/crypto"
)

// GSListeners groups the game server's client listener and its outbound
// connection to the login server.
type GSListeners struct {
	Clients     Listener `yaml:"clients"`
	LoginServer Listener `yaml:"login_server"`
}

// GameServer holds all configuration for the game server process: its
// client-facing listener, its outbound link to the LoginServer, and its own
// database connection for character-count lookups. World simulation isn't
// this tier's concern, so no rates/enchant/siege/offline-trade knobs live
// here — those belong to whatever process eventually owns gameplay.
type GameServer struct {
	Name string `yaml:"name"`

	// BlowfishKey is the GS↔LS pre-shared static key. Must match the login
	// server's; empty means the protocol's well-known default key.
	BlowfishKey string `yaml:"blowfish_key"`

	Runtime Runtime `yaml:"runtime"`

	Listeners GSListeners `yaml:"listeners"`

	// Server identity
	ServerID   int    `yaml:"server_id"`
	HexID      string `yaml:"hex_id"`
	MaxPlayers int    `yaml:"max_players"`

	Database DatabaseConfig `yaml:"database"`

	// Client holds the client-link settings; only Timeout applies here.
	Client Client `yaml:"client"`

	// Write queue / timeouts
	WriteTimeout  time.Duration `yaml:"write_timeout"`   // per-write deadline (default: 5s)
	SendQueueSize int           `yaml:"send_queue_size"` // per-client outbox capacity (default: 256)

	// Flood protection
	FloodProtection      bool `yaml:"flood_protection"`
	FastConnectionLimit  int  `yaml:"fast_connection_limit"`
	NormalConnectionTime int  `yaml:"normal_connection_time"` // ms
	FastConnectionTime   int  `yaml:"fast_connection_time"`   // ms
	MaxConnectionPerIP   int  `yaml:"max_connection_per_ip"`
}

// GSBlowfishKey returns the configured GS↔LS static Blowfish key, falling
// back to the protocol's default key when unset.
func (c GameServer) GSBlowfishKey() []byte {
	if c.BlowfishKey == "" {
		return crypto.DefaultGSBlowfishKey
	}
	return []byte(c.BlowfishKey)
}

// DefaultGameServer returns GameServer config with sensible defaults.
func DefaultGameServer() GameServer {
	return GameServer{
		Name: "gs1",
		Listeners: GSListeners{
			Clients: Listener{
				Connection: Connection{Host: "0.0.0.0", Port: 7777},
			},
			LoginServer: Listener{
				Connection: Connection{Host: "127.0.0.1", Port: 9013},
			},
		},
		ServerID:   1,
		HexID:      "c0a80001", // 192.168.0.1
		MaxPlayers: 100,
		Client: Client{
			Timeout: 120 * time.Second,
		},
		WriteTimeout:         5 * time.Second,
		SendQueueSize:        256,
		FloodProtection:      true,
		FastConnectionLimit:  15,
		NormalConnectionTime: 700,
		FastConnectionTime:   350,
		MaxConnectionPerIP:   50,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "la2go",
			Password: "la2go",
			DBName:   "la2go",
			SSLMode:  "disable",
		},
	}
}

// LoadGameServer loads game server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
