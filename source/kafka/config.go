package kafka

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ResetPolicy selects how offsets are resolved for partitions with no stored
// offset. Values other than the three constants are tolerated at load time;
// the resolver skips such partitions with a warning.
type ResetPolicy string

const (
	ResetEarliest ResetPolicy = "earliest"
	ResetLatest   ResetPolicy = "latest"
	ResetNone     ResetPolicy = "none"
)

// CodecCfg names a registered codec and carries its converter topic, the
// fixed label handed to every Decode call for that side of the record.
type CodecCfg struct {
	Name  string         `koanf:"name"`
	Topic string         `koanf:"topic"`
	Props map[string]any `koanf:"props"`
}

type Config struct {
	Brokers  []string `koanf:"brokers"`
	ClientID string   `koanf:"client_id"`
	GroupID  string   `koanf:"group_id"` // only read for committed-offset lookups
	Version  string   `koanf:"version"`
	TLSEn    bool     `koanf:"tls_enabled"`
	SASLUser string   `koanf:"sasl_user"`
	SASLPass string   `koanf:"sasl_pass"`

	TopicWhitelist []string `koanf:"topic_whitelist"`

	ResetPolicy     ResetPolicy   `koanf:"auto_offset_reset"` // earliest|latest|none
	MaxPollRecords  int           `koanf:"max_poll_records"`
	PollTimeout     time.Duration `koanf:"poll_timeout"`
	MaxShutdownWait time.Duration `koanf:"max_shutdown_wait"`

	IncludeHeaders bool `koanf:"include_headers"`

	KeyCodec   CodecCfg `koanf:"key_codec"`
	ValueCodec CodecCfg `koanf:"value_codec"`

	TopicListTimeout          time.Duration `koanf:"topic_list_timeout"`
	TopicListInterval         time.Duration `koanf:"topic_list_interval"`
	ReconfigureOnLeaderChange bool          `koanf:"reconfigure_on_leader_change"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadConfig merges YAML (if present) with env-vars
// (prefix `RELAY_SOURCE__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("source schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("RELAY_SOURCE__", "__", func(s string) string {
		return strings.TrimPrefix(s, "RELAY_SOURCE__")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	// include_headers defaults on; unmarshal alone cannot tell false from unset.
	if !k.Exists("include_headers") {
		cfg.IncludeHeaders = true
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations no driver could serve. Reset policies are
// deliberately not validated here.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if _, err := c.WhitelistRegex(); err != nil {
		return err
	}
	return nil
}

// WhitelistRegex compiles the topic whitelist into a single anchored pattern.
// Each element is trimmed of surrounding quotes and the elements are joined
// as alternatives, so plain topic names and regex fragments mix freely.
func (c Config) WhitelistRegex() (*regexp.Regexp, error) {
	if len(c.TopicWhitelist) == 0 {
		return nil, errors.New("kafka: empty topic whitelist")
	}
	parts := make([]string, 0, len(c.TopicWhitelist))
	for _, t := range c.TopicWhitelist {
		t = strings.TrimSpace(t)
		t = strings.Trim(t, `"'`)
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}
	re, err := regexp.Compile("^(" + strings.Join(parts, "|") + ")$")
	if err != nil {
		return nil, fmt.Errorf("kafka: bad topic whitelist: %w", err)
	}
	return re, nil
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.ClientID == "" {
		c.ClientID = "relay"
	}
	if c.GroupID == "" {
		c.GroupID = c.ClientID
	}
	if c.ResetPolicy == "" {
		c.ResetPolicy = ResetEarliest
	}
	if c.MaxPollRecords == 0 {
		c.MaxPollRecords = 500
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = time.Second
	}
	if c.MaxShutdownWait == 0 {
		c.MaxShutdownWait = 2 * time.Second
	}
	if c.KeyCodec.Name == "" {
		c.KeyCodec.Name = "bytes"
	}
	if c.ValueCodec.Name == "" {
		c.ValueCodec.Name = "bytes"
	}
	if c.TopicListTimeout == 0 {
		c.TopicListTimeout = time.Minute
	}
	if c.TopicListInterval == 0 {
		c.TopicListInterval = 5 * time.Minute
	}
}
