package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanun0323/go-link/pkg/link"
	"github.com/yanun0323/go-link/pkg/link/transport"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "link.json")
	data := []byte(`{
		"link": {"network": "unix", "address": "/tmp/link.sock", "idleTimeout": "3s"},
		"delivery": {"maxTries": 5, "pollInterval": "250ms"},
		"backoff": {"min": "100ms", "max": "2s", "jitter": 0, "maxAttempts": 4},
		"deadLetter": {"enabled": true, "postgres": {"user": "link", "params": {"application_name": "go-link"}}}
	}`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, transport.NetworkUnix, cfg.Link.Network)
	assert.Equal(t, 3*time.Second, cfg.Link.IdleTimeout.Std())
	assert.Equal(t, transport.DefaultDialTimeout, cfg.Link.DialTimeout.Std())
	assert.Equal(t, 5, cfg.Delivery.MaxTries)
	assert.Equal(t, link.DefaultHeartbeatMissThreshold, cfg.Delivery.HeartbeatMissThreshold)

	opt := cfg.ClientOption()
	assert.Equal(t, 5, opt.MaxTries)
	assert.Equal(t, 250*time.Millisecond, opt.PollInterval)

	topt := cfg.TransportOption()
	assert.Equal(t, "/tmp/link.sock", topt.Address)
	assert.Equal(t, 3*time.Second, topt.IdleTimeout)

	b := cfg.BackoffPolicy()
	assert.Equal(t, 100*time.Millisecond, b.Min)
	assert.Equal(t, 2*time.Second, b.Max)
	assert.Equal(t, 2.0, b.Factor)
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.True(t, b.Exhausted(4))

	pg := cfg.DeadLetter.Postgres.ConnOption()
	assert.Equal(t, "link", pg.User)
	assert.Equal(t, "link", pg.Database)
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "go-link", pg.Params["application_name"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	for _, data := range []string{
		`{`,
		`{"link": {"network": "udp"}}`,
		`{"link": {"address": ""}}`,
		`{"link": {"idleTimeout": "soon"}}`,
		`{"delivery": {"maxTries": -1}}`,
		`{"delivery": {"maxTries": 0}}`,
		`{"delivery": {"heartbeatMissThreshold": 0}}`,
		`{"delivery": {"pollInterval": "-1s"}}`,
		`{"delivery": {"pollInterval": 0}}`,
		`{"backoff": {"maxAttempts": -1}}`,
		`{"backoff": {"min": "10s", "max": "1s"}}`,
		`{"backoff": {"jitter": 2}}`,
		`{"deadLetter": {"enabled": true, "postgres": {"database": ""}}}`,
		`{"profiling": {"enabled": true, "serverAddress": ""}}`,
	} {
		_, err := Parse([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestDurationAcceptsNanoseconds(t *testing.T) {
	cfg, err := Parse([]byte(`{"delivery": {"pollInterval": 1000000}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, cfg.Delivery.PollInterval.Std())

	out, err := Duration(1500 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(out))
}
