package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	AI       AIConfig       `mapstructure:"ai"`
	Log      LogConfig      `mapstructure:"log"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	TTS      TTSConfig      `mapstructure:"tts"`
	Image    ImageConfig    `mapstructure:"image"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig 脚本生成模型配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"` // openai / azure / ark
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置（可选，未配置时使用内存存储）
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置（可选，用于进度快照缓存）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath      string `mapstructure:"base_path"`      // 基础路径
	BaseURL       string `mapstructure:"base_url"`       // 基础URL（用于生成访问URL）
	PresignExpiry int    `mapstructure:"presign_expiry"` // 预签名URL过期时间（秒）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	PresignExpiry   int    `mapstructure:"presign_expiry"`
}

// TTSConfig 直连语音合成配置（旁白策略 A）
type TTSConfig struct {
	APIURL             string `mapstructure:"api_url"`
	AccessToken        string `mapstructure:"access_token"`
	AppID              string `mapstructure:"app_id"`
	Cluster            string `mapstructure:"cluster"`
	VoiceType          string `mapstructure:"voice_type"`           // 默认音色
	LocalizedVoiceType string `mapstructure:"localized_voice_type"` // 非默认文字系统时强制使用的音色
	SampleRate         int    `mapstructure:"sample_rate"`
}

// ImageConfig 图片生成配置（视觉阶段路径 1）
type ImageConfig struct {
	Provider     string              `mapstructure:"provider"` // pollinations / volcengine
	Pollinations *PollinationsConfig `mapstructure:"pollinations,omitempty"`
	Volcengine   *VolcImageConfig    `mapstructure:"volcengine,omitempty"`
}

// PollinationsConfig 免费图片生成端点配置（无需密钥）
type PollinationsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// VolcImageConfig 火山引擎图片生成配置
type VolcImageConfig struct {
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	ReqKey    string `mapstructure:"req_key"`
	APIURL    string `mapstructure:"api_url"`
	Region    string `mapstructure:"region"`
}

// BrowserConfig 浏览器自动化配置（旁白策略 B / 视觉路径 2）
type BrowserConfig struct {
	DebugURL         string        `mapstructure:"debug_url"`          // 已运行的调试会话地址
	ProfileDir       string        `mapstructure:"profile_dir"`        // 操作者主浏览器 Profile
	AutomationDir    string        `mapstructure:"automation_dir"`     // 隔离的自动化 Profile（兜底）
	DownloadDir      string        `mapstructure:"download_dir"`       // 下载目录
	VoiceStudioURL   string        `mapstructure:"voice_studio_url"`   // 语音工具页面
	VideoToolURL     string        `mapstructure:"video_tool_url"`     // 视频工具页面
	PollInterval     time.Duration `mapstructure:"poll_interval"`      // 探测轮询间隔
	CompletionWindow time.Duration `mapstructure:"completion_window"`  // 等待任务完成的时间上限
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`   // 等待下载落盘的时间上限
}

// PipelineConfig 流水线编排配置
type PipelineConfig struct {
	WorkDir           string        `mapstructure:"work_dir"`           // 产物根目录（narration/ visual/ merged/）
	NarrationStrategy string        `mapstructure:"narration_strategy"` // direct / automation
	VisualPath        string        `mapstructure:"visual_path"`        // image / automation
	FPS               int           `mapstructure:"fps"`                // 视觉片段帧率
	LockStaleAfter    time.Duration `mapstructure:"lock_stale_after"`   // 锁过期阈值
	LockMaxWait       time.Duration `mapstructure:"lock_max_wait"`      // 抢锁等待上限
	WatermarkText     string        `mapstructure:"watermark_text"`     // 默认水印文字
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	switch c.Pipeline.NarrationStrategy {
	case "direct", "automation":
	default:
		return errors.New("invalid narration strategy, must be direct/automation")
	}

	switch c.Pipeline.VisualPath {
	case "image", "automation":
	default:
		return errors.New("invalid visual path, must be image/automation")
	}

	if c.Pipeline.WorkDir == "" {
		return errors.New("pipeline work_dir is required")
	}

	return nil
}
