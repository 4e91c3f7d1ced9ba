package governor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordium/eur2ccd-service/internal/model"
)

func mustRate(t *testing.T, f float64) model.Rate {
	t.Helper()
	r, ok := model.RateFromFloat(f)
	require.True(t, ok)
	return r
}

func newTestGovernor(t *testing.T) (*Governor, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "update.lockfile")
	g := New(DefaultThresholds(), WithLockFilePath(path))
	return g, path
}

func TestGovernor_OKWhenWithinBounds(t *testing.T) {
	g, _ := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 1.05), mustRate(t, 1.0))
	assert.Equal(t, model.ClassificationOK, cu.Classification)
	assert.False(t, g.ForcedDryRun())
}

func TestGovernor_WarnThreshold(t *testing.T) {
	// S3: prev = 1.0, candidate = 1.35, warn_up = 30, halt_up = 100.
	g, _ := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 1.35), mustRate(t, 1.0))
	assert.Equal(t, model.ClassificationWarn, cu.Classification)
	assert.False(t, g.ForcedDryRun())
}

func TestGovernor_HaltThresholdCreatesLockfileAndIsOneWay(t *testing.T) {
	// S4: prev = 1.0, candidate = 2.5, halt_up = 100.
	g, path := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 2.5), mustRate(t, 1.0))
	assert.Equal(t, model.ClassificationHalt, cu.Classification)
	assert.True(t, g.ForcedDryRun())
	assert.FileExists(t, path)

	// subsequent ticks with a perfectly safe candidate must remain
	// forced dry-run: halt is one-way within the process.
	_ = g.Classify(mustRate(t, 1.01), mustRate(t, 1.0))
	assert.True(t, g.ForcedDryRun())
}

func TestGovernor_WarnDownThreshold(t *testing.T) {
	g, _ := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 0.82), mustRate(t, 1.0))
	assert.Equal(t, model.ClassificationWarn, cu.Classification)
}

func TestGovernor_HaltDownThreshold(t *testing.T) {
	g, _ := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 0.4), mustRate(t, 1.0))
	assert.Equal(t, model.ClassificationHalt, cu.Classification)
}

func TestGovernor_ZeroPreviousRateIsHalt(t *testing.T) {
	g, _ := newTestGovernor(t)
	cu := g.Classify(mustRate(t, 1.0), mustRate(t, 0))
	assert.Equal(t, model.ClassificationHalt, cu.Classification)
}

func TestGovernor_StartupWithExistingLockfileForcesDryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "update.lockfile")
	require.NoError(t, os.WriteFile(path, []byte("halted"), 0o644))

	g := New(DefaultThresholds(), WithLockFilePath(path))
	assert.True(t, g.ForcedDryRun())
}
