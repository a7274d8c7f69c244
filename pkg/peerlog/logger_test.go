package peerlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewWithNilZapLoggerIsNilSafe(t *testing.T) {
	l := New(nil)
	assert.Nil(t, l)
	assert.NotPanics(t, func() {
		Debugf(l, "x")
		Infof(l, "x")
		Warnf(l, "x")
	})
}

func TestNewWrapsZapLogger(t *testing.T) {
	l := New(zap.NewNop())
	assert.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Debugf("x=%d", 1)
		l.Infof("x=%d", 1)
		l.Warnf("x=%d", 1)
		l.Errorf("x=%d", 1)
		l.With("k", "v").Infof("y")
	})
}
