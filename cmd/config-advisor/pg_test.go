package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sardine-ai/go-config-advisor/config"
	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/sardine-ai/go-config-advisor/pgcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	props *model.PropertySet
	err   error
}

func (f fakeSettings) Settings(context.Context) (*model.PropertySet, error) {
	return f.props, f.err
}

func TestInspectSettings(t *testing.T) {
	useConfig(t, config.Default())
	props := model.NewPropertySet()
	props.Set("postgres.shared_buffers", "7GB", model.Origin{File: pgcheck.Origin})
	props.Set("postgres.max_connections", "100", model.Origin{File: pgcheck.Origin})

	var out bytes.Buffer
	opts := pgInspectOptions{output: "json", failOn: "warning"}
	failed, err := inspectSettings(context.Background(), nil, opts, fakeSettings{props: props}, &out)
	require.NoError(t, err)
	assert.True(t, failed)

	rep := decodeReport(t, out.Bytes())
	assert.Equal(t, pgcheck.Origin, rep.Source)
	assert.Contains(t, rules(rep), "PG001")
	assert.NotContains(t, rules(rep), "JPA001")
}

func TestInspectSettingsErrors(t *testing.T) {
	useConfig(t, config.Default())
	boom := errors.New("permission denied for pg_settings")

	var out bytes.Buffer
	_, err := inspectSettings(context.Background(), nil, pgInspectOptions{output: "text"}, fakeSettings{err: boom}, &out)
	assert.ErrorIs(t, err, boom)

	_, err = runPGInspect(context.Background(), nil, pgInspectOptions{output: "text"}, &out)
	assert.ErrorContains(t, err, "--dsn or audit_dsn is required")
}
