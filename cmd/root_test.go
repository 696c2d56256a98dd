package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/config"
)

func execute(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var got config.Config
	root := NewRootCommand(func(_ context.Context, cfg config.Config, _ *zap.Logger) error {
		got = cfg
		return nil
	})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return got, err
}

func TestFlagsBindToConfig(t *testing.T) {
	cfg, err := execute(t, "chat.json", "-u", "users.json", "-o", "out/a.pdf", "-a", "-s=false", "-q", "80", "--page-numbers", "--workers", "2")
	require.NoError(t, err)
	assert.Equal(t, "chat.json", cfg.Transcript)
	assert.Equal(t, "users.json", cfg.UserFile)
	assert.Equal(t, "out/a.pdf", cfg.Output)
	assert.True(t, cfg.Avatars)
	assert.False(t, cfg.Speech)
	assert.Equal(t, 80, cfg.Quality)
	assert.True(t, cfg.Layout.PageNumbers)
	assert.Equal(t, 2, cfg.Media.Workers)
}

func TestDefaults(t *testing.T) {
	cfg, err := execute(t, "chat.json")
	require.NoError(t, err)
	assert.Equal(t, "wechat.pdf", cfg.Output)
	assert.True(t, cfg.Speech)
	assert.Equal(t, 60, cfg.Quality)
	assert.Equal(t, "media_cache", cfg.Media.CacheDir)
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papyrus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quality: 30\noutput: from-file.pdf\n"), 0o644))

	cfg, err := execute(t, "chat.json", "--config", path, "-q", "90")
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Quality)
	assert.Equal(t, "from-file.pdf", cfg.Output)
}

func TestInvalidQualityFails(t *testing.T) {
	_, err := execute(t, "chat.json", "-q", "0")
	assert.Error(t, err)
}

func TestTranscriptIsRequired(t *testing.T) {
	_, err := execute(t)
	assert.Error(t, err)
}
