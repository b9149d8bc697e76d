package ratelimit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePolicyFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestFilePolicySource_LoadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicyFile(t, path, `
enabled: true
defaultLimits:
  requestsPerMinute: 7
`)

	s, err := NewFilePolicySource(path, zap.NewNop())
	require.NoError(t, err)

	p := s.Current()
	require.NotNil(t, p)
	assert.Equal(t, 7, p.DefaultLimits.RequestsPerMinute)
	// 文件未覆盖的字段保持默认值
	assert.Equal(t, 100, p.DefaultLimits.RequestsPerHour)
}

func TestFilePolicySource_MissingFileDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nope.yaml")
	s, err := NewFilePolicySource(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), s.Current())
}

func TestFilePolicySource_BadReloadKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicyFile(t, path, "defaultLimits: {requestsPerMinute: 7}")

	s, err := NewFilePolicySource(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 7, s.Current().DefaultLimits.RequestsPerMinute)

	writePolicyFile(t, path, "defaultLimits: [")
	assert.Error(t, s.reload())
	assert.Equal(t, 7, s.Current().DefaultLimits.RequestsPerMinute)
}

func TestFilePolicySource_HotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	writePolicyFile(t, path, "defaultLimits: {requestsPerMinute: 7}")

	s, err := NewFilePolicySource(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	writePolicyFile(t, path, "defaultLimits: {requestsPerMinute: 8}")
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(2*time.Second)))

	require.Eventually(t, func() bool {
		return s.Current().DefaultLimits.RequestsPerMinute == 8
	}, 5*time.Second, 50*time.Millisecond)
}
