package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
)

func TestSampledCore_ErrorsBypassSampling(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)
	core := newSampledCore(obs, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 1000,
	})
	logger := zap.New(core).With(zap.String("component", "ingest"))

	for i := 0; i < 5; i++ {
		logger.Info("chunk embedded")
		logger.Error("insert failed")
	}

	assert.Equal(t, 1, logs.FilterMessage("chunk embedded").Len())
	assert.Equal(t, 5, logs.FilterMessage("insert failed").Len())
	assert.Equal(t, "ingest", logs.All()[0].ContextMap()["component"])
}

func TestSampledCore_Disabled(t *testing.T) {
	obs, _ := observer.New(zapcore.InfoLevel)
	assert.Same(t, obs, newSampledCore(obs, SamplingConfig{}))
}
