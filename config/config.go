package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 PAPYRUS_MEDIA_WORKERS。
const EnvPrefix = "PAPYRUS"

// Config 汇总一次导出所需的全部配置。
type Config struct {
	Transcript string `mapstructure:"transcript"`
	UserFile   string `mapstructure:"user_file"`
	Output     string `mapstructure:"output"`
	Avatars    bool   `mapstructure:"avatars"`
	Speech     bool   `mapstructure:"speech"`
	Quality    int    `mapstructure:"quality"`
	Debug      bool   `mapstructure:"debug"`

	Theme       string `mapstructure:"theme"`
	LayoutJSON  string `mapstructure:"layout_json"`
	MetricsFile string `mapstructure:"metrics_file"`
	LogFile     string `mapstructure:"log_file"`
	Timezone    string `mapstructure:"timezone"`

	Fonts  FontConfig   `mapstructure:"fonts"`
	Media  MediaConfig  `mapstructure:"media"`
	Voice  SpeechConfig `mapstructure:"voice"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Layout LayoutConfig `mapstructure:"layout"`
}

// FontConfig 指定候选字体文件，按顺序尝试。
type FontConfig struct {
	Primary []string `mapstructure:"primary"`
	Emoji   []string `mapstructure:"emoji"`
}

// MediaConfig 媒体解析与下载参数。
type MediaConfig struct {
	Root         string        `mapstructure:"root"`
	CacheDir     string        `mapstructure:"cache_dir"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Workers      int           `mapstructure:"workers"`
	RatePerSec   float64       `mapstructure:"rate"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxDimension int           `mapstructure:"max_dimension"`
	MaxIndexed   int           `mapstructure:"max_indexed"`
	FFmpeg       string        `mapstructure:"ffmpeg"`
	FFprobe      string        `mapstructure:"ffprobe"`
	S3           S3Config      `mapstructure:"s3"`
}

// S3Config 为 s3:// 引用配置对象存储。Endpoint 为空表示不启用。
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// SpeechConfig 语音转文本参数。
type SpeechConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	CacheDir string        `mapstructure:"cache_dir"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig 控制媒体缓存与转写缓存的清理策略。
type CacheConfig struct {
	SweepThreshold int           `mapstructure:"sweep_threshold"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	MaxSize        string        `mapstructure:"max_size"`
	SweepCron      string        `mapstructure:"sweep_cron"`
}

// LayoutConfig 控制排版阶段的可选行为。
type LayoutConfig struct {
	PageNumbers bool `mapstructure:"page_numbers"`
}

// MaxSizeBytes 解析 max_size（如 "500MB"），为空返回 0 表示不限制。
func (c CacheConfig) MaxSizeBytes() (uint64, error) {
	if strings.TrimSpace(c.MaxSize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("cache.max_size %q 无法解析: %w", c.MaxSize, err)
	}
	return n, nil
}

// Location 返回时间戳展示所用的时区。
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("时区 %s 无法加载: %w", c.Timezone, err)
	}
	return loc, nil
}

// SetDefaults 写入默认值，常量取自原导出脚本的行为。
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output", "wechat.pdf")
	v.SetDefault("speech", true)
	v.SetDefault("quality", 60)
	v.SetDefault("timezone", "local")

	v.SetDefault("fonts.primary", []string{})
	v.SetDefault("fonts.emoji", []string{})

	v.SetDefault("media.root", ".")
	v.SetDefault("media.cache_dir", "media_cache")
	v.SetDefault("media.timeout", 10*time.Second)
	v.SetDefault("media.workers", 4)
	v.SetDefault("media.rate", 8.0)
	v.SetDefault("media.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) papyrus-chat")
	v.SetDefault("media.max_dimension", 1000)
	v.SetDefault("media.max_indexed", 200000)
	v.SetDefault("media.ffmpeg", "ffmpeg")
	v.SetDefault("media.ffprobe", "ffprobe")

	v.SetDefault("voice.provider", "gemini")
	v.SetDefault("voice.model", "gemini-2.0-flash")
	v.SetDefault("voice.cache_dir", "speech_cache")
	v.SetDefault("voice.timeout", 60*time.Second)

	v.SetDefault("cache.sweep_threshold", 100)
	v.SetDefault("cache.max_age", time.Hour)
	v.SetDefault("cache.max_size", "500MB")
	v.SetDefault("cache.sweep_cron", "@hourly")
}

// Load 读取 .env、可选的 YAML 配置文件与环境变量，返回校验后的配置。
// v 通常已经绑定了命令行参数；传 nil 时新建一个实例。
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	// .env 不存在属于正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("加载 .env 失败: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置失败: %w", err)
	}
	if cfg.Voice.APIKey == "" {
		cfg.Voice.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查取值范围。
func (c Config) Validate() error {
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality 必须在 1-100 之间，当前为 %d", c.Quality)
	}
	if c.Media.Workers < 1 {
		return fmt.Errorf("media.workers 必须大于 0")
	}
	if c.Cache.SweepCron != "" && !gronx.New().IsValid(c.Cache.SweepCron) {
		return fmt.Errorf("cache.sweep_cron %q 不是合法的 cron 表达式", c.Cache.SweepCron)
	}
	if _, err := c.Cache.MaxSizeBytes(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
