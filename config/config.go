package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const configver = "1.0.0"

const (
	// DefaultTimeout is the upstream exchange timeout used when none is configured.
	DefaultTimeout = 5 * time.Second

	// DefaultCacheSize is the response cache capacity used when none is configured.
	DefaultCacheSize = 4096

	// DefaultMaxInflight bounds concurrently resolving queries.
	DefaultMaxInflight = 1024
)

var (
	// ErrInvalidSinkholeAddress is returned when sinkholeip is not an IPv4 literal.
	ErrInvalidSinkholeAddress = errors.New("invalid sinkhole address")

	// ErrInvalidBlockAction is returned for a block action other than sinkhole or nxdomain.
	ErrInvalidBlockAction = errors.New("invalid block action")

	// ErrInvalidCacheSize is returned when cachesize is not a positive integer.
	ErrInvalidCacheSize = errors.New("cache size must be positive")

	// ErrNoUpstream is returned when no upstream address is configured.
	ErrNoUpstream = errors.New("upstream address is required")
)

// Config type
type Config struct {
	Version         string
	Bind            string
	Upstream        string
	BlockAction     BlockAction
	SinkholeIP      string
	BlockListFiles  []string
	Blocklist       []string
	CacheSize       int
	Expire          uint32
	Timeout         Duration
	MaxInflight     int
	LogLevel        string
	LogFile         string
	AccessLog       string
	AccessList      []string
	ClientRateLimit int
	API             string

	sVersion string
}

// ServerVersion return current server version
func (c *Config) ServerVersion() string {
	return c.sVersion
}

// BlockAction selects how blocked names are answered.
type BlockAction int

const (
	// Sinkhole answers blocked A queries with the sinkhole address.
	Sinkhole BlockAction = iota
	// Nxdomain answers blocked queries with a name error.
	Nxdomain
)

// String implements fmt.Stringer.
func (a BlockAction) String() string {
	switch a {
	case Sinkhole:
		return "sinkhole"
	case Nxdomain:
		return "nxdomain"
	}
	return fmt.Sprintf("BlockAction(%d)", int(a))
}

// UnmarshalText accepts "sinkhole" or "nxdomain" in any letter case.
func (a *BlockAction) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "sinkhole":
		*a = Sinkhole
	case "nxdomain":
		*a = Nxdomain
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBlockAction, string(text))
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a BlockAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Duration type
type Duration struct {
	time.Duration
}

// UnmarshalText for duration type
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// SinkholeAddr returns the parsed sinkhole address.
func (c *Config) SinkholeAddr() (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(c.SinkholeIP))
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSinkholeAddress, c.SinkholeIP)
	}
	return ip.To4(), nil
}

// QueryTimeout returns the upstream timeout, falling back to DefaultTimeout.
func (c *Config) QueryTimeout() time.Duration {
	if c.Timeout.Duration <= 0 {
		return DefaultTimeout
	}
	return c.Timeout.Duration
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream) == "" {
		return ErrNoUpstream
	}

	if _, _, err := net.SplitHostPort(c.Upstream); err != nil {
		return fmt.Errorf("invalid upstream address %q: %w", c.Upstream, err)
	}

	if c.BlockAction != Sinkhole && c.BlockAction != Nxdomain {
		return fmt.Errorf("%w: %s", ErrInvalidBlockAction, c.BlockAction)
	}

	// The sinkhole address is checked even for nxdomain so a later switch of
	// action cannot surface a broken value at query time.
	if _, err := c.SinkholeAddr(); err != nil {
		return err
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.CacheSize)
	}

	return nil
}

var defaultConfig = `
# Config version, config and build versions can be different.
version = "%s"

# Address to bind to for the DNS server (UDP)
bind = ":53"

# Upstream DNS server to forward queries to, host:port
upstream = "1.1.1.1:53"

# Action for blocked domains: "sinkhole" answers A queries with sinkholeip,
# "nxdomain" answers every query type with a name error.
blockaction = "sinkhole"

# IPv4 address returned for blocked A queries
sinkholeip = "0.0.0.0"

# Blocklist files, one domain per line or hosts-file format. Lines starting with # are ignored.
# Files are watched and reloaded on change, or on SIGHUP.
# blocklistfiles = ["/etc/russdns/blocklist.txt"]
blocklistfiles = []

# Manual blocklist entries
blocklist = []

# Response cache size (total entries)
cachesize = 4096

# Cache lifetime in seconds for answers without records
expire = 600

# Network timeout for each upstream exchange in duration
timeout = "5s"

# Maximum number of queries resolved at the same time
maxinflight = 1024

# What kind of information should be logged, Log verbosity level [error,warn,info,debug]
loglevel = "info"

# Structured log file, left blank for disabled. Log records are appended.
logfile = ""

# The location of access log file, left blank for disabled. Common Log Format.
accesslog = ""

# Which clients allowed to make queries
accesslist = [
"0.0.0.0/0",
"::0/0"
]

# Client ip address based ratelimit per minute, 0 for disabled
clientratelimit = 0

# Address to bind to for the http API server, left blank for disabled
api = "127.0.0.1:8080"
`

// Load loads the given config file
func Load(cfgfile, version string) (*Config, error) {
	config := &Config{
		CacheSize:   DefaultCacheSize,
		Expire:      600,
		MaxInflight: DefaultMaxInflight,
		Timeout:     Duration{DefaultTimeout},
	}

	if _, err := os.Stat(cfgfile); os.IsNotExist(err) && cfgfile != "" {
		if err := generateConfig(cfgfile); err != nil {
			return nil, err
		}
	}

	zlog.Info("Loading config file", "path", cfgfile)

	if _, err := toml.DecodeFile(cfgfile, config); err != nil {
		// toml.ParseError does not unwrap the UnmarshalText error.
		var perr toml.ParseError
		if errors.As(err, &perr) && strings.EqualFold(perr.LastKey, "blockaction") {
			detail := strings.TrimPrefix(perr.Message, ErrInvalidBlockAction.Error())
			return nil, fmt.Errorf("could not load config: line %d: %w%s", perr.Position.Line, ErrInvalidBlockAction, detail)
		}
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	if config.Version != configver {
		zlog.Warn("Config file is out of version, you can generate new one and check the changes.")
	}

	config.sVersion = version

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func generateConfig(path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not generate config: %w", err)
	}

	defer func() {
		err := output.Close()
		if err != nil {
			zlog.Warn("Config generation failed while file closing", "error", err.Error())
		}
	}()

	r := strings.NewReader(fmt.Sprintf(defaultConfig, configver))
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("could not copy default config: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("Default config file generated", "config", abs)
	}

	return nil
}
