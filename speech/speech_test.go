package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/papyrus-chat/metrics"
)

type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	args := m.Called(ctx, audioPath)
	return args.String(0), args.Error(1)
}

func writeAudio(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := OpenStore(dir, nil)
	require.NoError(t, err)
	return s
}

func TestSameAudioTranscribedOnce(t *testing.T) {
	dir := t.TempDir()
	first := writeAudio(t, dir, "a.wav", "RIFF-same-bytes")
	second := writeAudio(t, dir, "b.wav", "RIFF-same-bytes")

	inner := new(mockTranscriber)
	inner.On("Transcribe", mock.Anything, first).Return("明天见", nil).Once()

	store := openStore(t, filepath.Join(dir, "db"))
	defer store.Close()
	rec := metrics.New()
	c := NewCachedTranscriber(inner, store, nil, rec)

	got, err := c.Transcribe(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "明天见", got)

	got, err = c.Transcribe(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "明天见", got)

	inner.AssertExpectations(t)
	inner.AssertNumberOfCalls(t, "Transcribe", 1)
	assert.Equal(t, 1.0, rec.Value("papyrus_transcripts_total", "model"))
}

func TestTranscriptPersistsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "v.wav", "voice-bytes")
	dbDir := filepath.Join(dir, "db")

	inner := new(mockTranscriber)
	inner.On("Transcribe", mock.Anything, audio).Return("收到", nil).Once()
	store := openStore(t, dbDir)
	_, err := NewCachedTranscriber(inner, store, nil, nil).Transcribe(context.Background(), audio)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// 第二次运行不再需要识别服务
	store = openStore(t, dbDir)
	defer store.Close()
	got, err := NewCachedTranscriber(nil, store, nil, nil).Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "收到", got)
	inner.AssertNumberOfCalls(t, "Transcribe", 1)
}

func TestFailuresAreRememberedNotPersisted(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "v.wav", "noise")
	dbDir := filepath.Join(dir, "db")
	store := openStore(t, dbDir)
	defer store.Close()

	inner := new(mockTranscriber)
	inner.On("Transcribe", mock.Anything, audio).Return("", fail("识别服务不可用", errors.New("503"))).Once()
	c := NewCachedTranscriber(inner, store, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Transcribe(context.Background(), audio)
		require.ErrorIs(t, err, ErrTranscription)
		assert.Equal(t, "【语音未能识别：识别服务不可用】", FailureText(err))
	}
	inner.AssertNumberOfCalls(t, "Transcribe", 1)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmptyResultIsFailure(t *testing.T) {
	dir := t.TempDir()
	audio := writeAudio(t, dir, "v.wav", "silence")
	inner := new(mockTranscriber)
	inner.On("Transcribe", mock.Anything, audio).Return("", nil)

	_, err := NewCachedTranscriber(inner, nil, nil, nil).Transcribe(context.Background(), audio)
	require.ErrorIs(t, err, ErrTranscription)
	assert.Equal(t, "【语音未能识别：结果为空】", FailureText(err))

	_, err = NewCachedTranscriber(inner, nil, nil, nil).Transcribe(context.Background(), filepath.Join(dir, "missing.wav"))
	require.ErrorIs(t, err, ErrTranscription)
}

func TestStoreSweep(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put("old1", "a", now.Add(-3*time.Hour)))
	require.NoError(t, store.Put("old2", "b", now.Add(-2*time.Hour)))
	require.NoError(t, store.Put("new", "c", now))

	removed, err := store.Sweep(3, time.Hour, now)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = store.Sweep(2, time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, err := store.Get("old1")
	require.NoError(t, err)
	assert.False(t, ok)
	text, ok, err := store.Get("new")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c", text)

	last, err := store.LastSweep()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
	require.NoError(t, store.MarkSweep(now))
	last, err = store.LastSweep()
	require.NoError(t, err)
	assert.True(t, now.Equal(last))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "0:08", DurationLabel(8*time.Second+400*time.Millisecond, true))
	assert.Equal(t, "1:05", DurationLabel(65*time.Second, true))
	assert.Equal(t, "语音", DurationLabel(0, false))
	assert.Equal(t, "📢语音转文本 (0:08):\n你好", BubbleText("0:08", "你好"))
	assert.Equal(t, "【语音未能识别：timeout】", FailureText(errors.New("timeout")))
}

type fakeConverter struct{ out string }

func (f fakeConverter) ToWAV(context.Context, string) (string, error) { return f.out, nil }

func TestPrepareConvertsUnsupportedFormats(t *testing.T) {
	g := &GeminiTranscriber{}
	_, _, err := g.prepare(context.Background(), "v.silk")
	assert.ErrorIs(t, err, ErrTranscription)

	g.converter = fakeConverter{out: "v.silk.wav"}
	path, mime, err := g.prepare(context.Background(), "v.silk")
	require.NoError(t, err)
	assert.Equal(t, "v.silk.wav", path)
	assert.Equal(t, "audio/wav", mime)

	path, mime, err = g.prepare(context.Background(), "v.MP3")
	require.NoError(t, err)
	assert.Equal(t, "v.MP3", path)
	assert.Equal(t, "audio/mp3", mime)
}

func TestUnavailableTranscriber(t *testing.T) {
	_, err := Unavailable("未配置 GEMINI_API_KEY", nil).Transcribe(context.Background(), "a.silk")
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Equal(t, "【语音未能识别：未配置 GEMINI_API_KEY】", FailureText(err))
}
