package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/la2go/internal/crypto"
)

// Connection is one host:port endpoint, bind-side or dial-side.
type Connection struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the endpoint as a dialable/bindable "host:port" string.
func (c Connection) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Listener is one listener section holding a single connection endpoint.
type Listener struct {
	Connection Connection `yaml:"connection"`
}

// GSMessages holds the LS→GS cross-link message settings.
type GSMessages struct {
	// Timeout bounds how long the LS waits on a GS's reply to a
	// RequestChars bus call before treating it as unknown.
	Timeout time.Duration `yaml:"timeout"`
}

// GSListener is the game-server listener section: its endpoint plus the
// cross-link message settings.
type GSListener struct {
	Connection Connection `yaml:"connection"`
	Messages   GSMessages `yaml:"messages"`
}

// LoginListeners groups the login server's two listeners.
type LoginListeners struct {
	Clients     Listener   `yaml:"clients"`
	GameServers GSListener `yaml:"game_servers"`
}

// Runtime holds process-level tuning.
type Runtime struct {
	WorkerThreads int `yaml:"worker_threads"`
}

// Client holds the client-link settings. The game server config reuses the
// same section with only Timeout set.
type Client struct {
	// Timeout is the idle-read deadline for a client link; exceeding it
	// without a packet closes the connection.
	Timeout            time.Duration `yaml:"timeout"`
	ShowLicence        bool          `yaml:"show_licence"`
	EnableCmdlineLogin bool          `yaml:"enable_cmdline_login"`
}

// LoginServer holds all configuration for the login server.
type LoginServer struct {
	Name string `yaml:"name"`

	// BlowfishKey is the GS↔LS pre-shared static key. Empty means the
	// protocol's well-known default key.
	BlowfishKey string `yaml:"blowfish_key"`

	Runtime Runtime `yaml:"runtime"`

	// AutoRegistration creates an account on first login with the presented
	// password instead of rejecting unknown usernames.
	AutoRegistration bool `yaml:"auto_registration"`

	// AllowedGS maps a hex secret (hex-encoded) to the server id it is
	// permitted to claim. Empty means any hex may register.
	AllowedGS map[string]AllowedGameServer `yaml:"allowed_gs"`

	Listeners LoginListeners `yaml:"listeners"`

	Database DatabaseConfig `yaml:"database"`

	Client Client `yaml:"client"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Security
	LoginTryBeforeBan  int `yaml:"login_try_before_ban"`
	LoginBlockAfterBan int `yaml:"login_block_after_ban"` // seconds

	// Flood protection
	FloodProtection      bool `yaml:"flood_protection"`
	FastConnectionLimit  int  `yaml:"fast_connection_limit"`
	NormalConnectionTime int  `yaml:"normal_connection_time"` // ms
	FastConnectionTime   int  `yaml:"fast_connection_time"`   // ms
	MaxConnectionPerIP   int  `yaml:"max_connection_per_ip"`
}

// GSBlowfishKey returns the configured GS↔LS static Blowfish key, falling
// back to the protocol's default key when unset.
func (c LoginServer) GSBlowfishKey() []byte {
	if c.BlowfishKey == "" {
		return crypto.DefaultGSBlowfishKey
	}
	return []byte(c.BlowfishKey)
}

// AllowedGameServer is one entry of the allowed_gs allowlist.
type AllowedGameServer struct {
	ServerID int `yaml:"server_id"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool parameters (optional, defaults from pgxpool apply if not set)
	MaxConns          int32  `yaml:"max_conns"`           // default: max(4, NumCPU)
	MinConns          int32  `yaml:"min_conns"`           // default: 0
	MinIdleConns      int32  `yaml:"min_idle_conns"`      // default: 0
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`   // duration, e.g. "1h"
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`  // duration, e.g. "30m"
	HealthCheckPeriod string `yaml:"health_check_period"` // duration, e.g. "1m"
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	// Append pool parameters if set (non-zero/non-empty)
	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// DefaultLoginServer returns LoginServer config with sensible defaults.
func DefaultLoginServer() LoginServer {
	return LoginServer{
		Name:             "la2go",
		AutoRegistration: true,
		Listeners: LoginListeners{
			Clients: Listener{
				Connection: Connection{Host: "0.0.0.0", Port: 2106},
			},
			GameServers: GSListener{
				Connection: Connection{Host: "127.0.0.1", Port: 9013},
				Messages:   GSMessages{Timeout: 5 * time.Second},
			},
		},
		Client: Client{
			Timeout:     5 * time.Minute,
			ShowLicence: true,
		},
		LogLevel:             "info",
		LoginTryBeforeBan:    5,
		LoginBlockAfterBan:   900,
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

// LoadLoginServer loads login server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadLoginServer(path string) (LoginServer, error) {
	cfg := DefaultLoginServer()

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

	for key := range cfg.AllowedGS {
		if _, err := hex.DecodeString(key); err != nil {
			return cfg, fmt.Errorf("config %s: allowed_gs key %q is not valid hex: %w", path, key, err)
		}
	}

	return cfg, nil
}
