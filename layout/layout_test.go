package layout

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/papyrus-chat/chat"
	"github.com/ByLCY/papyrus-chat/dsl"
	"github.com/ByLCY/papyrus-chat/glyph"
	"github.com/ByLCY/papyrus-chat/media"
	"github.com/ByLCY/papyrus-chat/metrics"
)

// stubEngine 每个字符宽 0.5 个字号，不需要字体文件。
type stubEngine struct{}

func (stubEngine) StringWidth(text, _ string, size float64) (float64, error) {
	return float64(utf8.RuneCountInString(text)) * size * 0.5 * PtToMm, nil
}

// recordingMeasurer 记录被测量过的文本。
type recordingMeasurer struct {
	inner *glyph.Measurer
	seen  []string
}

func (r *recordingMeasurer) Width(text, font string, size float64) float64 {
	r.seen = append(r.seen, text)
	return r.inner.Width(text, font, size)
}

type panicMeasurer struct{ inner TextMeasurer }

func (p panicMeasurer) Width(text, font string, size float64) float64 {
	if strings.Contains(text, "boom") {
		panic("font table corrupted")
	}
	return p.inner.Width(text, font, size)
}

type mockResolver struct{ mock.Mock }

func (m *mockResolver) Resolve(ctx context.Context, req media.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockTranscriber struct{ mock.Mock }

func (m *mockTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

type stubVideo struct {
	thumb    string
	duration time.Duration
}

func (s stubVideo) Thumbnail(context.Context, string) (string, error) { return s.thumb, nil }
func (s stubVideo) Duration(context.Context, string) (time.Duration, error) {
	return s.duration, nil
}

func testMeasurer() *glyph.Measurer {
	return glyph.NewMeasurer(stubEngine{}, glyph.Fonts{Emoji: "emoji", Default: "default"})
}

func testOptions(t *testing.T) BuildOptions {
	t.Helper()
	theme, err := DefaultTheme()
	require.NoError(t, err)
	return BuildOptions{Theme: theme, Measurer: testMeasurer(), Location: time.UTC}
}

func compose(t *testing.T, opts BuildOptions, msgs []chat.Message) *Result {
	t.Helper()
	c, err := NewComposer(opts)
	require.NoError(t, err)
	res, err := c.Compose(context.Background(), msgs, nil)
	require.NoError(t, err)
	return res
}

func textMsg(id string, at time.Time, body string, outgoing bool) chat.Message {
	return chat.Message{
		ID: id, SenderID: "u1", CreatedAt: at, TimeKnown: true,
		Type: chat.TypeText, Outgoing: outgoing, Content: chat.Text{Body: body},
	}
}

func allTexts(res *Result) []string {
	var out []string
	for _, p := range res.Pages {
		for _, tb := range p.Texts {
			out = append(out, tb.Content)
		}
	}
	return out
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	path := filepath.Join(dir, "thumb.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestDefaultTheme(t *testing.T) {
	theme, err := DefaultTheme()
	require.NoError(t, err)

	assert.Equal(t, 210.0, theme.PageWidth)
	assert.Equal(t, 297.0, theme.PageHeight)
	assert.Equal(t, Margin{Top: 30, Right: 20, Bottom: 10, Left: 20}, theme.Margin)
	assert.Equal(t, 150.0, theme.MaxTextWidth())
	assert.InDelta(t, 5.0, theme.Bubble.LineHeight, 1e-9)
	assert.InDelta(t, 10.0, theme.Bubble.FontSize, 1e-9)
	assert.InDelta(t, 0.5*PtToMm, theme.Bubble.Border, 1e-9)
	assert.Equal(t, &Color{R: 204, G: 255, B: 153}, theme.Style("self").Fill)
	assert.Equal(t, "${date} (${count}条)", theme.Template("bookmark", ""))
	assert.Equal(t, "微信聊天记录", theme.Meta.Title)
	assert.False(t, theme.PageNumbers)
}

func TestThemeOverridesKeepDefaults(t *testing.T) {
	doc, err := dsl.ParseString(`theme Dark {
  page A5 landscape { margin-top: 20mm; text-inset: 40mm }
  bubble { font-size: 12pt; line-height: 1.5x }
  style self { fill: #000 }
}`)
	require.NoError(t, err)
	theme, err := ResolveTheme(doc)
	require.NoError(t, err)

	assert.Equal(t, "Dark", theme.Name)
	assert.Equal(t, 210.0, theme.PageWidth)
	assert.Equal(t, 148.0, theme.PageHeight)
	assert.Equal(t, 20.0, theme.Margin.Top)
	assert.Equal(t, 10.0, theme.Margin.Bottom)
	assert.Equal(t, 170.0, theme.MaxTextWidth())
	assert.InDelta(t, 12*1.5*PtToMm, theme.Bubble.LineHeight, 1e-9)
	assert.Equal(t, &Color{}, theme.Style("self").Fill)
	assert.Equal(t, &Color{R: 0x99, G: 0xCC, B: 0x99}, theme.Style("self").Border)
}

func TestThemeRejectsBadValues(t *testing.T) {
	doc, err := dsl.ParseString("theme Bad { style self { fill: wide } }")
	require.NoError(t, err)
	_, err = ResolveTheme(doc)
	assert.Error(t, err)

	doc, err = dsl.ParseString("theme Bad { page A4 { text-inset: 300mm } }")
	require.NoError(t, err)
	_, err = ResolveTheme(doc)
	assert.Error(t, err)
}

func TestComposeScenarioA(t *testing.T) {
	msgs, err := chat.DecodeTranscript([]byte(`[{"CreateTime": 1700000000, "talker": "u1", "type_name": "文本", "msg": "hello[微笑]", "is_sender": 0}]`), time.UTC)
	require.NoError(t, err)

	opts := testOptions(t)
	rec := &recordingMeasurer{inner: testMeasurer()}
	opts.Measurer = rec
	res := compose(t, opts, msgs)

	require.Len(t, res.Bookmarks, 2)
	assert.Equal(t, Bookmark{Title: "微信聊天记录", Page: 0}, res.Bookmarks[0])
	assert.Equal(t, Bookmark{Title: "2023-11-14 (1条)", Page: 0}, res.Bookmarks[1])
	assert.Contains(t, allTexts(res), "hello😊")
	assert.Contains(t, rec.seen, "hello😊")
	assert.NotContains(t, rec.seen, "hello[微笑]")

	// 表情单独成段，使用表情字体
	for _, tb := range res.Pages[0].Texts {
		if tb.Content != "hello😊" {
			continue
		}
		assert.Equal(t, []Run{{Text: "hello", Font: "primary"}, {Text: "😊", Font: "emoji"}}, tb.Lines[0].Runs)
	}
}

func TestComposeScenarioBImagePlaceholder(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, mock.MatchedBy(func(r media.Request) bool {
		return r.Kind == media.KindImage && r.Ref == "http://unreachable.invalid/a.jpg"
	})).Return("", media.ErrNotFound)

	opts := testOptions(t)
	opts.Resolver = resolver
	opts.Metrics = metrics.New()
	msg := chat.Message{
		ID: "42", SenderID: "u2", CreatedAt: time.Unix(1700000000, 0), TimeKnown: true,
		Type: chat.TypeImage, Content: chat.Media{Ref: "http://unreachable.invalid/a.jpg"},
	}
	res := compose(t, opts, []chat.Message{msg})

	assert.Contains(t, allTexts(res), "[图片]")
	assert.Empty(t, res.Pages[0].Images)
	assert.Equal(t, 1.0, opts.Metrics.Value("papyrus_placeholders_total", "image"))
	resolver.AssertExpectations(t)
}

func TestComposeScenarioCPagination(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]chat.Message, 500)
	for i := range msgs {
		msgs[i] = textMsg(strconv.Itoa(i), start.Add(time.Duration(i)*time.Minute), "短消息", i%2 == 0)
	}
	opts := testOptions(t)
	res := compose(t, opts, msgs)

	require.Greater(t, len(res.Pages), 1)
	bottom := opts.Theme.PageHeight - opts.Theme.Margin.Bottom
	bubbles := 0
	for i, p := range res.Pages {
		for _, r := range p.Rects {
			assert.LessOrEqual(t, r.Y+r.Height, bottom, "page %d rect crosses the bottom margin", i)
			assert.GreaterOrEqual(t, r.Y, opts.Theme.Margin.Top, "page %d rect above the top margin", i)
			if r.Radius > 0 {
				bubbles++
			}
		}
	}
	assert.Equal(t, 500, bubbles)

	// 每次换页都发生在下一条消息放不下时：页尾剩余空间小于一条消息所需高度
	b := opts.Theme.Bubble
	need := 5 + b.LineHeight + 2*b.Padding
	for i, p := range res.Pages[:len(res.Pages)-1] {
		lowest := 0.0
		for _, r := range p.Rects {
			lowest = max(lowest, r.Y+r.Height)
		}
		assert.Greater(t, lowest+b.Gap+need, bottom, "page %d broke early", i)
	}
}

func TestBookmarksAreMonotonic(t *testing.T) {
	var msgs []chat.Message
	day := time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)
	for d := 0; d < 6; d++ {
		for i := 0; i < 40; i++ {
			msgs = append(msgs, textMsg("", day.AddDate(0, 0, d).Add(time.Duration(i)*time.Minute), strings.Repeat("字", 30+i), false))
		}
	}
	// 乱序输入
	msgs[0], msgs[len(msgs)-1] = msgs[len(msgs)-1], msgs[0]
	res := compose(t, testOptions(t), msgs)

	require.Len(t, res.Bookmarks, 7)
	assert.Equal(t, 0, res.Bookmarks[0].Page)
	for i := 1; i < len(res.Bookmarks); i++ {
		assert.LessOrEqual(t, res.Bookmarks[i-1].Page, res.Bookmarks[i].Page)
		assert.Less(t, res.Bookmarks[i].Page, len(res.Pages))
	}
	assert.Equal(t, "2023-01-01 (40条)", res.Bookmarks[1].Title)
	assert.Equal(t, "2023-01-06 (40条)", res.Bookmarks[6].Title)
}

func TestPlaceRecoversFromPanic(t *testing.T) {
	opts := testOptions(t)
	opts.Measurer = panicMeasurer{inner: testMeasurer()}
	pages := newPageCollector(opts.Theme.PageWidth, opts.Theme.PageHeight, opts.Theme.Margin)
	engine := newBubbleEngine(opts, chat.Directory{}, pages)

	cur := Cursor{Y: 100}
	next := engine.Place(context.Background(), textMsg("1", time.Unix(0, 0), "boom", false), cur)
	assert.Equal(t, Cursor{Y: 105}, next)
	assert.Empty(t, pages.curr().rects)
	assert.Empty(t, pages.curr().texts)

	next = engine.Place(context.Background(), textMsg("2", time.Unix(0, 0), "ok", false), next)
	assert.Greater(t, next.Y, 105.0)
	assert.NotEmpty(t, pages.curr().rects)
}

func TestPlaceBreaksOnlyWhenBubbleDoesNotFit(t *testing.T) {
	opts := testOptions(t)
	pages := newPageCollector(opts.Theme.PageWidth, opts.Theme.PageHeight, opts.Theme.Margin)
	tracker := &PageTracker{}
	pages.onPageBreak(tracker.Observe)
	engine := newBubbleEngine(opts, chat.Directory{}, pages)

	// 一行文本气泡高 11mm，头像 10mm，时间戳 5mm：共需 16mm
	next := engine.Place(context.Background(), textMsg("1", time.Unix(0, 0), "hi", false), Cursor{Y: 287 - 16})
	assert.Equal(t, 0, tracker.Current())
	assert.InDelta(t, 287-16+16+8, next.Y, 1e-9)

	next = engine.Place(context.Background(), textMsg("2", time.Unix(0, 0), "hi", false), Cursor{Y: 287 - 15})
	assert.Equal(t, 1, tracker.Current())
	assert.Equal(t, 1, next.Page)
	assert.InDelta(t, 30+16+8, next.Y, 1e-9)
	assert.Equal(t, 1, tracker.Breaks())
}

func TestVoiceTranscript(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return("/cache/voice_7.wav", nil)
	tx := new(mockTranscriber)
	tx.On("Transcribe", mock.Anything, "/cache/voice_7.wav").Return("明天见", nil).Once()

	opts := testOptions(t)
	opts.Resolver = resolver
	opts.Speech = tx
	opts.Video = stubVideo{duration: 8 * time.Second}
	msg := chat.Message{
		ID: "7", SenderID: "me", CreatedAt: time.Unix(1700000000, 0), TimeKnown: true,
		Type: chat.TypeVoice, Outgoing: true, Content: chat.Media{Ref: "voice/7.silk"},
	}
	res := compose(t, opts, []chat.Message{msg})

	assert.Contains(t, allTexts(res), "📢语音转文本 (0:08):\n明天见")
	var fills []Color
	for _, r := range res.Pages[0].Rects {
		if r.FillColor != nil && r.Radius > 0 {
			fills = append(fills, *r.FillColor)
		}
	}
	assert.Equal(t, []Color{{R: 0xE6, G: 0xE6, B: 0xFF}}, fills)
	tx.AssertExpectations(t)
}

func TestVoiceWithoutSpeechUsesPlaceholder(t *testing.T) {
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return("/cache/voice_8.wav", nil)
	opts := testOptions(t)
	opts.Resolver = resolver
	msg := chat.Message{ID: "8", SenderID: "u1", Type: chat.TypeVoice, Content: chat.Media{Ref: "8.silk"}}
	res := compose(t, opts, []chat.Message{msg})
	assert.Contains(t, allTexts(res), "📢[语音消息]")
}

func TestVideoBubbleHasPlayOverlay(t *testing.T) {
	thumb := writePNG(t, t.TempDir(), 200, 150)
	resolver := new(mockResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return("/cache/video_9.mp4", nil)

	opts := testOptions(t)
	opts.Resolver = resolver
	opts.Video = stubVideo{thumb: thumb}
	msg := chat.Message{ID: "9", SenderID: "u1", CreatedAt: time.Unix(1700000000, 0), TimeKnown: true, Type: chat.TypeVideo, Content: chat.Media{Ref: "9.mp4"}}
	res := compose(t, opts, []chat.Message{msg})

	page := res.Pages[0]
	require.Len(t, page.Images, 1)
	img := page.Images[0]
	assert.Equal(t, thumb, img.Path)
	assert.InDelta(t, 200*PtToMm, img.Width, 1e-9)
	assert.InDelta(t, 150*PtToMm, img.Height, 1e-9)
	require.Len(t, page.Circles, 1)
	assert.Equal(t, 0.7, page.Circles[0].Opacity)
	assert.InDelta(t, img.X+img.Width/2, page.Circles[0].CX, 1e-9)
	assert.Contains(t, allTexts(res), "[视频消息]")
	assert.Contains(t, allTexts(res), "▶")
}

func TestFileAndNoticeAndOther(t *testing.T) {
	at := time.Unix(1700000000, 0)
	msgs := []chat.Message{
		{ID: "1", SenderID: "u1", CreatedAt: at, TimeKnown: true, Type: chat.TypeFile, Content: chat.File{Ref: `C:\files\报告.pdf`}},
		{ID: "2", SenderID: "u1", CreatedAt: at, TimeKnown: true, Type: chat.TypeFile, Content: chat.File{}},
		{ID: "3", SenderID: "u1", CreatedAt: at, TimeKnown: true, Type: chat.TypeSystemNotice, Content: chat.Notice{Text: "你撤回了一条消息"}},
		{ID: "4", SenderID: "u1", CreatedAt: at, TimeKnown: true, Type: chat.TypeOther, Content: chat.Unknown{TypeName: "位置", Body: "北京"}},
		{ID: "5", SenderID: "u1", CreatedAt: at, TimeKnown: true, Type: chat.TypeText, Content: chat.Text{}},
	}
	res := compose(t, testOptions(t), msgs)
	texts := allTexts(res)
	assert.Contains(t, texts, "[文件] 报告.pdf")
	assert.Contains(t, texts, "[文件] 未知文件")
	assert.Contains(t, texts, "你撤回了一条消息")
	assert.Contains(t, texts, "[位置] 北京")
	assert.Contains(t, texts, "[空消息]")

	for _, tb := range res.Pages[0].Texts {
		if tb.Content == "你撤回了一条消息" {
			assert.Equal(t, "center", tb.Align)
			assert.Equal(t, Color{R: 0x80, G: 0x80, B: 0x80}, tb.Color)
		}
	}
}

func TestUnknownTimestampShowsRawText(t *testing.T) {
	msg := textMsg("1", time.Unix(0, 0).UTC(), "hi", false)
	msg.TimeKnown = false
	msg.RawTime = "昨天 下午"
	res := compose(t, testOptions(t), []chat.Message{msg})
	assert.Contains(t, allTexts(res), "昨天 下午")
	assert.Equal(t, "1970-01-01 (1条)", res.Bookmarks[1].Title)
}

func TestAvatarImageAndFallback(t *testing.T) {
	opts := testOptions(t)
	opts.Avatars = map[string]string{"u1": "/cache/avatar_u1.jpg"}
	msgs := []chat.Message{
		textMsg("1", time.Unix(100, 0), "a", false),
		{ID: "2", SenderID: "u2", CreatedAt: time.Unix(200, 0), TimeKnown: true, Type: chat.TypeText, Content: chat.Text{Body: "b"}},
	}
	c, err := NewComposer(opts)
	require.NoError(t, err)
	res, err := c.Compose(context.Background(), msgs, chat.Directory{
		"u1": {ID: "u1", Nickname: "Alice"},
		"u2": {ID: "u2", Nickname: "鲍勃", Remark: "老鲍"},
	})
	require.NoError(t, err)

	page := res.Pages[0]
	require.Len(t, page.Images, 1)
	assert.Equal(t, "/cache/avatar_u1.jpg", page.Images[0].Path)
	texts := allTexts(res)
	assert.Contains(t, texts, "Alice")
	assert.Contains(t, texts, "老鲍")
	assert.Contains(t, texts, "老")
	assert.Equal(t, avatarColor("老鲍"), avatarColor("老鲍"))
}

func TestPageNumbersFooter(t *testing.T) {
	doc, err := dsl.ParseString("theme Numbered { page A4 { page-numbers: true } }")
	require.NoError(t, err)
	theme, err := ResolveTheme(doc)
	require.NoError(t, err)

	opts := testOptions(t)
	opts.Theme = theme
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var msgs []chat.Message
	for i := 0; i < 60; i++ {
		msgs = append(msgs, textMsg("", start.Add(time.Duration(i)*time.Second), "x", false))
	}
	res := compose(t, opts, msgs)
	require.Greater(t, len(res.Pages), 1)
	last := len(res.Pages)
	assert.Equal(t, "第 1 / "+strconv.Itoa(last)+" 页", res.Pages[0].Footer.Texts[0].Content)
	assert.Equal(t, "第 "+strconv.Itoa(last)+" / "+strconv.Itoa(last)+" 页", res.Pages[last-1].Footer.Texts[0].Content)
}

func TestComposeEmptyTranscript(t *testing.T) {
	c, err := NewComposer(testOptions(t))
	require.NoError(t, err)
	_, err = c.Compose(context.Background(), nil, nil)
	assert.ErrorIs(t, err, chat.ErrEmptyTranscript)

	_, err = NewComposer(BuildOptions{})
	assert.Error(t, err)
}

func TestCoverRegion(t *testing.T) {
	opts := testOptions(t)
	opts.SourceName = "family.json"
	res := compose(t, opts, []chat.Message{textMsg("1", time.Unix(0, 0), "hi", false)})
	texts := allTexts(res)
	assert.Contains(t, texts, "微信聊天记录")
	assert.Contains(t, texts, "文件名: family.json")
}

func TestCoverRule(t *testing.T) {
	opts := testOptions(t)
	theme := opts.Theme
	msgs := make([]chat.Message, 0, 120)
	for i := 0; i < 120; i++ {
		msgs = append(msgs, textMsg(strconv.Itoa(i), time.Unix(int64(i), 0), "line "+strconv.Itoa(i), i%2 == 0))
	}
	res := compose(t, opts, msgs)
	require.Greater(t, len(res.Pages), 1)

	require.Len(t, res.Pages[0].Lines, 1)
	rule := res.Pages[0].Lines[0]
	assert.Equal(t, theme.Margin.Left, rule.X1)
	assert.Equal(t, theme.PageWidth-theme.Margin.Right, rule.X2)
	assert.Equal(t, rule.Y1, rule.Y2)
	assert.Less(t, rule.Y1, theme.Margin.Top, "分隔线应位于正文区域之上")
	assert.Greater(t, rule.Width, 0.0)
	for _, p := range res.Pages[1:] {
		assert.Empty(t, p.Lines)
	}
}

func TestWriteDebugJSON(t *testing.T) {
	opts := testOptions(t)
	res := compose(t, opts, []chat.Message{textMsg("1", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), "hi", false)})

	path := filepath.Join(t.TempDir(), "debug", "layout.json")
	require.NoError(t, WriteDebugJSON(res, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Bookmarks, 2)
	assert.Equal(t, "2024-03-01 (1条)", back.Bookmarks[1].Title)
	assert.Equal(t, len(res.Pages), len(back.Pages))
	assert.Contains(t, allTexts(&back), "hi")

	assert.NoError(t, WriteDebugJSON(nil, path))
}
