package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap-incubator/tinydb/wal"
	"github.com/pingcap/errors"
)

type Config struct {
	LogLevel string `toml:"log-level"`
	// Number of commit latch slots. Transactions whose write sets hash to the same slot validate
	// one after another.
	LatchSlots uint64 `toml:"latch-slots"`
	// How often the engine reclaims versions no transaction can see. Zero disables background GC.
	GCInterval Duration `toml:"gc-interval"`
	WAL        WAL      `toml:"wal"`
}

type WAL struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"` // Directory of the badger database. Created when missing.
	SyncWrites bool   `toml:"sync-writes"`
	// Event payloads at least this large are lz4 compressed, e.g. "1KB". Zero disables compression.
	CompressThreshold Size `toml:"compress-threshold"`
	QueueCapacity     int  `toml:"queue-capacity"` // Events buffered before new ones are dropped.
	MaxBatch          int  `toml:"max-batch"`
}

// Duration is a time.Duration read from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Size is a byte count read from human strings such as "4KB" or "1MiB".
type Size int64

func (s *Size) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	*s = Size(n)
	return nil
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(s))), nil
}

func (c *Config) Validate() error {
	if c.LatchSlots == 0 {
		return errors.New("latch-slots must be greater than 0")
	}
	if c.GCInterval.Duration < 0 {
		return errors.New("gc-interval must not be negative")
	}
	if c.WAL.Enabled {
		if c.WAL.Dir == "" {
			return errors.New("wal.dir must be set when the WAL is enabled")
		}
		if c.WAL.QueueCapacity <= 0 {
			return errors.New("wal.queue-capacity must be greater than 0")
		}
		if c.WAL.CompressThreshold < 0 {
			return errors.New("wal.compress-threshold must not be negative")
		}
	}
	return nil
}

// Options converts the WAL section into the options of the badger sink.
func (w WAL) Options() wal.Options {
	return wal.Options{
		Dir:               w.Dir,
		SyncWrites:        w.SyncWrites,
		CompressThreshold: int(w.CompressThreshold),
		QueueCapacity:     w.QueueCapacity,
		MaxBatch:          w.MaxBatch,
	}
}

const (
	KB = 1024
	MB = 1024 * 1024
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:   getLogLevel(),
		LatchSlots: 2048,
		GCInterval: Duration{10 * time.Second},
		WAL: WAL{
			Enabled:           false,
			Dir:               "/tmp/tinydb/wal",
			SyncWrites:        true,
			CompressThreshold: 1 * KB,
			QueueCapacity:     1024,
			MaxBatch:          64,
		},
	}
}

func NewTestConfig() *Config {
	return &Config{
		LogLevel:   getLogLevel(),
		LatchSlots: 64,
		GCInterval: Duration{0},
		WAL: WAL{
			Dir:               os.TempDir(),
			CompressThreshold: 256,
			QueueCapacity:     128,
			MaxBatch:          8,
		},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c := NewDefaultConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.Annotatef(err, "load config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}
