package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "name: smsgw-test\npulsar:\n  url: pulsar://localhost:6650\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Modem.BaudRate)
	assert.Equal(t, 30*time.Second, cfg.Modem.TimeOut())
	assert.Equal(t, []string{"/dev/ttyUSB*", "/dev/ttyACM*"}, cfg.Modem.Patterns)
	assert.Equal(t, "+86", cfg.Modem.CountryCode)
	assert.Equal(t, "http", cfg.Consul.Scheme)
}

// TestLoadParsesTimeOutAsSeconds guards against gopkg.in/yaml.v2 decoding a
// bare scalar straight into a time.Duration field, which has no special
// case for durations and would read "time_out: 30" as 30 nanoseconds
// instead of 30 seconds.
func TestLoadParsesTimeOutAsSeconds(t *testing.T) {
	path := writeConfig(t, "name: smsgw-test\npulsar:\n  url: pulsar://localhost:6650\nmodem:\n  time_out: 45\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.Modem.TimeOutSeconds)
	assert.Equal(t, 45*time.Second, cfg.Modem.TimeOut())
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writeConfig(t, "pulsar:\n  url: pulsar://localhost:6650\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingPulsarUrl(t *testing.T) {
	path := writeConfig(t, "name: smsgw-test\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDerivesMainTopicFromName(t *testing.T) {
	path := writeConfig(t, "name: smsgw-test\npulsar:\n  url: pulsar://localhost:6650\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "persistent://echo-wing/main/smsgw-test", cfg.Pulsar.Main)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
