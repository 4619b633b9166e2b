// Package config loads the process-scoped configuration described in
// spec.md §6: service identity, bus topics, KV store coordinates and modem
// pool parameters.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration document, loaded once at process start
// and passed explicitly to every collaborator. There is no package-level
// instance.
type Config struct {
	Name   string       `yaml:"name"`
	Pulsar PulsarConfig `yaml:"pulsar"`
	Consul ConsulConfig `yaml:"consul"`
	Modem  ModemConfig  `yaml:"modem"`
}

// PulsarConfig names the message bus endpoint and topics (§6).
type PulsarConfig struct {
	Url  string `yaml:"url"`
	Main string `yaml:"main"`
	Dlq  string `yaml:"dlq"`
}

// ConsulConfig names the discovery/KV store used by the schema publisher (§4.7).
type ConsulConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Token  string `yaml:"token"`
	Scheme string `yaml:"scheme"`
	Base   string `yaml:"base"`
}

// ModemConfig parameterizes the modem pool (§4.5) and sessions (§4.4).
// TimeOutSeconds is a plain number of seconds (spec.md §6 "Modem.TimeOut
// (seconds)"), not a yaml.v2 duration string: gopkg.in/yaml.v2 has no
// special-cased time.Duration decoding, so a bare scalar like `time_out: 30`
// unmarshaled straight into a time.Duration field would be read as 30
// nanoseconds. TimeOut converts it explicitly.
type ModemConfig struct {
	BaudRate       int      `yaml:"baud_rate"`
	TimeOutSeconds int      `yaml:"time_out"`
	Patterns       []string `yaml:"patterns"`
	UsbVPid        []string `yaml:"usb_vpid"`
	CountryCode    string   `yaml:"country_code"`
}

// TimeOut returns the per-port init/probe budget as a time.Duration.
func (m ModemConfig) TimeOut() time.Duration {
	return time.Duration(m.TimeOutSeconds) * time.Second
}

// Load reads and parses the YAML configuration file at path, applying
// defaults for any field the document omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Modem.BaudRate == 0 {
		c.Modem.BaudRate = 115200
	}
	if c.Modem.TimeOutSeconds == 0 {
		c.Modem.TimeOutSeconds = 30
	}
	if len(c.Modem.Patterns) == 0 {
		c.Modem.Patterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}
	if c.Modem.CountryCode == "" {
		c.Modem.CountryCode = "+86"
	}
	if c.Pulsar.Main == "" && c.Name != "" {
		c.Pulsar.Main = fmt.Sprintf("persistent://echo-wing/main/%s", c.Name)
	}
	if c.Pulsar.Dlq == "" {
		c.Pulsar.Dlq = "persistent://echo-wing/dlq/all"
	}
	if c.Consul.Scheme == "" {
		c.Consul.Scheme = "http"
	}
	if c.Consul.Base == "" {
		c.Consul.Base = "echo-wing"
	}
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if c.Pulsar.Url == "" {
		return fmt.Errorf("config: pulsar.url is required")
	}
	return nil
}
