package harvest

import (
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/sources"
)

// Config holds the settings for a Harvester. It is usually read from a TOML
// file, e.g.
//
//	workdir = "/var/lib/bagcreate/work"
//	target = "/var/lib/bagcreate/sips"
//	catalog = "/var/lib/bagcreate/catalog.ql"
//	timeout = "2m"
//
//	[bag_info]
//	Source-Organization = "CERN"
//
//	[sources.cds-test]
//	type = "invenio_v1"
//	base_url = "https://cds-test.cern.ch/record/"
type Config struct {
	// WorkDir is where packages are assembled.
	WorkDir string `toml:"workdir"`

	// Target is the directory finished packages are moved into. Leave
	// empty to keep them in WorkDir.
	Target string

	// Store, if set, is where finished packages are uploaded as zip files
	// instead of Target. It is a directory, "memory", or an s3 location
	// like "s3:/bucket/prefix" or "s3://localhost:9000/bucket/prefix".
	Store string

	// Catalog is the database runs are recorded in. See catalog.Open.
	Catalog string

	SentryDSN string `toml:"sentry_dsn"`

	// RateLimit caps download bandwidth in bytes per second. 0 is no
	// limit.
	RateLimit int64 `toml:"rate_limit"`

	// EOSMount is where the EOS file system is mounted locally.
	EOSMount string `toml:"eos_mount"`

	// Timeout is for each HTTP request made upstream.
	Timeout Duration

	AWSRegion string `toml:"aws_region"`

	// Port is used by the HTTP server.
	Port string

	Verbose bool

	// BagInfo holds extra tags for every bag-info.txt.
	BagInfo map[string]string `toml:"bag_info"`

	// Sources adds to or replaces the built in sources.
	Sources map[string]sources.Config
}

// Duration is a time.Duration written as a string, e.g. "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration for the toml decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// DefaultConfig returns the settings used for anything a configuration
// file leaves out.
func DefaultConfig() Config {
	return Config{
		WorkDir:   os.TempDir(),
		Catalog:   "memory",
		Timeout:   Duration{60 * time.Second},
		AWSRegion: "us-east-1",
		Port:      "14100",
	}
}

var (
	ErrNoWorkDir    = errors.New("workdir is missing in config")
	ErrBadRateLimit = errors.New("rate_limit may not be negative")
)

// LoadConfig reads the TOML file at path on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrap(err, path)
	}
	return cfg, cfg.Check()
}

// Check returns an error if the configuration cannot be used.
func (cfg Config) Check() error {
	if cfg.WorkDir == "" {
		return ErrNoWorkDir
	}
	if cfg.RateLimit < 0 {
		return ErrBadRateLimit
	}
	for name, sc := range cfg.Sources {
		if sc.Type == "" {
			return errors.Errorf("source %s has no type", name)
		}
	}
	return nil
}

// Tags returns the BagInfo tags sorted by name.
func (cfg Config) Tags() bagit.Tags {
	var names []string
	for name := range cfg.BagInfo {
		names = append(names, name)
	}
	sort.Strings(names)
	var ts bagit.Tags
	for _, name := range names {
		ts.Add(name, cfg.BagInfo[name])
	}
	return ts
}
