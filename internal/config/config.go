package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/crew/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

const (
	defaultCloudEndpoint = "https://assist.dotcommander.dev"
	defaultCallTimeout   = 10 * time.Minute
	defaultPollInterval  = 5 * time.Second
)

// ToolServer describes one configured tool server.
type ToolServer struct {
	Name    string            `yaml:"-"`
	Type    string            `yaml:"type"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     []string          `yaml:"env"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Auth    *ServerAuth       `yaml:"auth"`
	Timeout time.Duration     `yaml:"timeout"`
}

// ServerAuth configures credential minting for a tool server.
type ServerAuth struct {
	Scopes []string `yaml:"scopes"`
}

// Transport returns the effective transport for the server, accounting for
// the stdio default.
func (t ToolServer) Transport() string {
	if t.Type == "" {
		return "stdio"
	}
	return t.Type
}

// ToolServers is a slice alias to allow custom YAML decoding.
//
// Servers keep the order in which they appear in the settings file. That
// order decides which one becomes the default selection after bring-up.
type ToolServers []ToolServer

// UnmarshalYAML implements order-preserving server YAML decoding.
func (ts *ToolServers) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		var srv ToolServer
		if err := node.Content[i+1].Decode(&srv); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		srv.Name = node.Content[i].Value
		*ts = append(*ts, srv)
	}
	return nil
}

// Get returns the server with the given name.
func (ts ToolServers) Get(name string) (ToolServer, bool) {
	for _, srv := range ts {
		if srv.Name == name {
			return srv, true
		}
	}
	return ToolServer{}, false
}

// Names returns all server names in configuration order.
func (ts ToolServers) Names() []string {
	names := make([]string, 0, len(ts))
	for _, srv := range ts {
		names = append(names, srv.Name)
	}
	return names
}

// Cloud configures the onboarding backend used by `crew setup`.
type Cloud struct {
	Endpoint     string        `yaml:"endpoint" env:"CLOUD_ENDPOINT"`
	Project      string        `yaml:"project" env:"PROJECT"`
	PollInterval time.Duration `yaml:"poll-interval" env:"CLOUD_POLL_INTERVAL"`
	Scopes       []string      `yaml:"scopes"`
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	Servers      ToolServers   `yaml:"servers"`
	Disable      []string      `yaml:"disable" env:"DISABLE"`
	CallTimeout  time.Duration `yaml:"call-timeout" env:"CALL_TIMEOUT"`
	NoInheritEnv bool          `yaml:"no-inherit-env" env:"NO_INHERIT_ENV"`
	Raw          bool          `yaml:"raw" env:"RAW"`
	Quiet        bool          `yaml:"quiet" env:"QUIET"`
	WordWrap     int           `yaml:"word-wrap" env:"WORD_WRAP"`
	CachePath    string        `yaml:"cache-path" env:"CACHE_PATH"`
	Cloud        Cloud         `yaml:"cloud"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	SettingsPath string
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not determine home directory."}
	}

	sp := filepath.Join(home, ".config", "crew", "crew.yml")
	c.SettingsPath = sp

	dir := filepath.Dir(sp)
	if dirErr := os.MkdirAll(dir, 0o700); dirErr != nil {
		return c, errs.Error{Err: dirErr, Reason: "Could not create config directory."}
	}

	if dirErr := WriteConfigFile(sp); dirErr != nil {
		return c, dirErr
	}
	content, err := os.ReadFile(sp)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "CREW_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	if c.CachePath == "" {
		c.CachePath = filepath.Join(home, ".config", "crew", "history")
	}

	if err := os.MkdirAll(
		filepath.Join(c.CachePath, "calls"),
		0o700,
	); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create cache directory."}
	}

	if c.WordWrap == 0 {
		c.WordWrap = 80
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = Default().CallTimeout
	}
	if c.Cloud.Endpoint == "" {
		c.Cloud.Endpoint = Default().Cloud.Endpoint
	}
	if c.Cloud.PollInterval == 0 {
		c.Cloud.PollInterval = Default().Cloud.PollInterval
	}
	if len(c.Cloud.Scopes) == 0 {
		c.Cloud.Scopes = Default().Cloud.Scopes
	}

	for i := range c.Servers {
		if err := ExpandServer(&c.Servers[i]); err != nil {
			return c, errs.Error{Err: err, Reason: "Could not expand server configuration."}
		}
	}

	if err := c.Servers.validate(); err != nil {
		return c, errs.Error{Err: err, Reason: "Invalid tool server configuration."}
	}

	return c, nil
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			CallTimeout: defaultCallTimeout,
			WordWrap:    80,
			Cloud: Cloud{
				Endpoint:     defaultCloudEndpoint,
				PollInterval: defaultPollInterval,
				Scopes: []string{
					"https://www.googleapis.com/auth/cloud-platform",
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
			},
		},
	}
}
