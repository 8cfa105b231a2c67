package postgres

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/transport"
	"github.com/drblury/pulseflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	for _, name := range []string{TransportName, "postgresql"} {
		assert.True(t, transport.DefaultRegistry.Has(name), name)
	}
	caps := transport.GetCapabilities(TransportName)
	assert.False(t, caps.RequiresDLQEmulation())
	assert.True(t, caps.SupportsDLQLease)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{ConnectionString: "postgres://localhost/pulse"}.withDefaults()
	assert.Equal(t, DefaultSchema, cfg.SchemaName)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
}

func TestDialect(t *testing.T) {
	d, err := Dialect("pulseflow")
	require.NoError(t, err)
	assert.Equal(t, "pulseflow.", d.Prefix)
	assert.Equal(t, "FOR UPDATE SKIP LOCKED", d.SkipLocked)
	assert.Contains(t, d.Schema, "CREATE SCHEMA IF NOT EXISTS pulseflow;")
	assert.Contains(t, d.Schema, "pulseflow.dead_letter_queue")
	assert.Equal(t, "SELECT $1, $2", d.Rebind("SELECT ?, ?"))

	_, err = Dialect("bad; drop")
	assert.Error(t, err)
}

func TestBuildRequiresConnectionString(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, ErrConnectionString)
}
