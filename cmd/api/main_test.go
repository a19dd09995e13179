package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	bytes.Buffer
	synced bool
}

func (b *syncBuffer) Sync() error {
	b.synced = true
	return nil
}

func newBufferedLogger(out *syncBuffer) *zap.Logger {
	return zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		out,
		zap.InfoLevel,
	))
}

func TestExitCodeFlushesLogOnFailure(t *testing.T) {
	out := &syncBuffer{}
	lg := newBufferedLogger(out)

	code := exitCode(lg, func() error { return errors.New("listen tcp :8080: address already in use") })

	assert.Equal(t, 1, code)
	assert.True(t, out.synced)
	assert.Contains(t, out.String(), "address already in use")
}

func TestExitCodeCleanShutdown(t *testing.T) {
	out := &syncBuffer{}
	lg := newBufferedLogger(out)

	assert.Equal(t, 0, exitCode(lg, func() error { return nil }))
	assert.True(t, out.synced)
	assert.Empty(t, out.String())
}
