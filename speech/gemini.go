package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"
)

const transcribePrompt = "请将这段语音逐字转写为简体中文文本。只输出转写内容，不要添加说明；听不清时输出空字符串。"

// Converter 把模型不支持的音频格式转换为 wav。
type Converter interface {
	ToWAV(ctx context.Context, src string) (string, error)
}

// GeminiTranscriber 调用 Gemini 多模态模型完成转写。
type GeminiTranscriber struct {
	client    *genai.Client
	model     string
	timeout   time.Duration
	converter Converter
}

// GeminiOptions 构造参数。
type GeminiOptions struct {
	APIKey    string
	Model     string
	Timeout   time.Duration
	Converter Converter
}

// NewGeminiTranscriber 创建识别客户端。
func NewGeminiTranscriber(ctx context.Context, opts GeminiOptions) (*GeminiTranscriber, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &GeminiTranscriber{client: client, model: opts.Model, timeout: opts.Timeout, converter: opts.Converter}, nil
}

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	path, mime, err := g.prepare(ctx, audioPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fail("文件不存在", err)
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(cctx, g.model, contents, nil)
	if err != nil {
		return "", fail("识别服务不可用", err)
	}
	var sb strings.Builder
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fail("结果为空", nil)
	}
	return text, nil
}

// prepare 返回可直接上传的文件与 MIME 类型，必要时先转码。
func (g *GeminiTranscriber) prepare(ctx context.Context, path string) (string, string, error) {
	if mime, ok := audioMIME(path); ok {
		return path, mime, nil
	}
	if g.converter == nil {
		return "", "", fail("不支持的音频格式 "+filepath.Ext(path), nil)
	}
	wav, err := g.converter.ToWAV(ctx, path)
	if err != nil {
		return "", "", fail("音频转码失败", err)
	}
	return wav, "audio/wav", nil
}

func audioMIME(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav", true
	case ".mp3":
		return "audio/mp3", true
	case ".aac":
		return "audio/aac", true
	case ".ogg", ".opus":
		return "audio/ogg", true
	case ".flac":
		return "audio/flac", true
	case ".aiff":
		return "audio/aiff", true
	}
	return "", false
}
