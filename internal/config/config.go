package config

import (
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"github.com/yanun0323/go-link/pkg/conn"
	"github.com/yanun0323/go-link/pkg/exception"
	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/link/transport"
)

// Config mirrors the JSON config layout.
type Config struct {
	Link       LinkConfig       `json:"link"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Backoff    BackoffConfig    `json:"backoff"`
	DeadLetter DeadLetterConfig `json:"deadLetter"`
	Profiling  ProfilingConfig  `json:"profiling"`
}

// LinkConfig describes the peer connection.
type LinkConfig struct {
	Network      string   `json:"network"`
	Address      string   `json:"address"`
	LocalAddress string   `json:"localAddress"`
	IdleTimeout  Duration `json:"idleTimeout"`
	DialTimeout  Duration `json:"dialTimeout"`
	MaxFrameSize int      `json:"maxFrameSize"`
}

// DeliveryConfig describes retry and heartbeat behavior.
type DeliveryConfig struct {
	MaxTries               int      `json:"maxTries"`
	HeartbeatMissThreshold int      `json:"heartbeatMissThreshold"`
	PollInterval           Duration `json:"pollInterval"`
}

// BackoffConfig describes the wait between redial attempts.
type BackoffConfig struct {
	Min         Duration `json:"min"`
	Max         Duration `json:"max"`
	Factor      float64  `json:"factor"`
	Jitter      float64  `json:"jitter"`
	MaxAttempts int      `json:"maxAttempts"`
}

// DeadLetterConfig controls persistence of messages given up after MaxTries.
type DeadLetterConfig struct {
	Enabled  bool           `json:"enabled"`
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig describes the dead-letter database.
type PostgresConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
}

// ProfilingConfig controls the continuous profiler.
type ProfilingConfig struct {
	Enabled         bool              `json:"enabled"`
	ApplicationName string            `json:"applicationName"`
	ServerAddress   string            `json:"serverAddress"`
	Tags            map[string]string `json:"tags"`
}

// Default returns the configuration used for every field the file leaves out.
func Default() Config {
	backoff := transport.DefaultBackoff()
	return Config{
		Link: LinkConfig{
			Network:      transport.NetworkTCP,
			Address:      "127.0.0.1:7600",
			IdleTimeout:  Duration(transport.DefaultIdleTimeout),
			DialTimeout:  Duration(transport.DefaultDialTimeout),
			MaxFrameSize: transport.DefaultMaxFrameSize,
		},
		Delivery: DeliveryConfig{
			MaxTries:               link.DefaultMaxTries,
			HeartbeatMissThreshold: link.DefaultHeartbeatMissThreshold,
			PollInterval:           Duration(link.DefaultPollInterval),
		},
		Backoff: BackoffConfig{
			Min:    Duration(backoff.Min),
			Max:    Duration(backoff.Max),
			Factor: backoff.Factor,
			Jitter: backoff.Jitter,
		},
		DeadLetter: DeadLetterConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "link",
				SSLMode:  "disable",
			},
		},
		Profiling: ProfilingConfig{
			ApplicationName: "go-link",
			ServerAddress:   "http://localhost:4040",
		},
	}
}

// Load reads a JSON config file over the defaults and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config").With("path", path)
	}
	return Parse(data)
}

// Parse decodes JSON config data over the defaults and validates it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	switch c.Link.Network {
	case transport.NetworkTCP, transport.NetworkUnix:
	default:
		return invalid("link.network must be tcp or unix")
	}
	if c.Link.Address == "" {
		return invalid("link.address is empty")
	}
	if c.Link.IdleTimeout < 0 || c.Link.DialTimeout < 0 {
		return invalid("link timeouts must be >= 0")
	}
	if c.Link.MaxFrameSize < 0 {
		return invalid("link.maxFrameSize must be >= 0")
	}
	if c.Delivery.MaxTries <= 0 {
		return invalid("delivery.maxTries must be > 0")
	}
	if c.Delivery.HeartbeatMissThreshold <= 0 {
		return invalid("delivery.heartbeatMissThreshold must be > 0")
	}
	if c.Delivery.PollInterval <= 0 {
		return invalid("delivery.pollInterval must be > 0")
	}
	if c.Backoff.Min < 0 || c.Backoff.Max < 0 || c.Backoff.Min > c.Backoff.Max {
		return invalid("backoff must satisfy 0 <= min <= max")
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		return invalid("backoff.jitter must be between 0 and 1")
	}
	if c.Backoff.MaxAttempts < 0 {
		return invalid("backoff.maxAttempts must be >= 0")
	}
	if c.DeadLetter.Enabled && c.DeadLetter.Postgres.ConnString == "" && c.DeadLetter.Postgres.Database == "" {
		return invalid("deadLetter.postgres.database is empty")
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return invalid("profiling.serverAddress is empty")
	}
	return nil
}

func invalid(reason string) error {
	return errors.Wrap(exception.ErrLinkBadConfig, reason)
}

// ClientOption returns the delivery settings as link options. Hooks are left to the caller.
func (c Config) ClientOption() link.Option {
	return link.Option{
		MaxTries:               c.Delivery.MaxTries,
		HeartbeatMissThreshold: c.Delivery.HeartbeatMissThreshold,
		PollInterval:           c.Delivery.PollInterval.Std(),
	}
}

// TransportOption returns the connection settings as transport options.
func (c Config) TransportOption() transport.Option {
	return transport.Option{
		Network:      c.Link.Network,
		Address:      c.Link.Address,
		LocalAddress: c.Link.LocalAddress,
		DialTimeout:  c.Link.DialTimeout.Std(),
		IdleTimeout:  c.Link.IdleTimeout.Std(),
		MaxFrameSize: c.Link.MaxFrameSize,
	}
}

// BackoffPolicy returns the redial backoff.
func (c Config) BackoffPolicy() transport.Backoff {
	return transport.Backoff{
		Min:         c.Backoff.Min.Std(),
		Max:         c.Backoff.Max.Std(),
		Factor:      c.Backoff.Factor,
		Jitter:      c.Backoff.Jitter,
		MaxAttempts: c.Backoff.MaxAttempts,
	}
}

// ConnOption returns the dead-letter database options.
func (c PostgresConfig) ConnOption() conn.Option {
	return conn.Option{
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		Database:   c.Database,
		SSLMode:    c.SSLMode,
		Params:     c.Params,
		ConnString: c.ConnString,
	}
}

// Duration is a time.Duration written as "5s" in JSON. Plain numbers are nanoseconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := sonic.Unmarshal(data, &text); err != nil {
		var n int64
		if err := sonic.Unmarshal(data, &n); err != nil {
			return errors.Wrap(err, "duration must be a string or nanoseconds")
		}
		*d = Duration(n)
		return nil
	}

	parsed, err := time.ParseDuration(text)
	if err != nil {
		return errors.Wrap(err, "parse duration").With("value", text)
	}
	*d = Duration(parsed)
	return nil
}
