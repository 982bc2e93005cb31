package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyforge/internal/config"
	"storyforge/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storyforge",
	Short: "StoryForge - theme to short-form video pipeline",
	Long: `StoryForge turns a short text theme into a finished short-form video:
script generation, per-scene narration, per-scene visuals, validation and
final assembly, driven as one resumable pipeline.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.storyforge")
	}

	// 环境变量设置
	viper.SetEnvPrefix("STORYFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "0s") // SSE 长连接不能设置写超时

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.options.temperature", 0.8)
	viper.SetDefault("ai.options.max_tokens", 4096)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB
	viper.SetDefault("mongo.uri", "")
	viper.SetDefault("mongo.database", "storyforge")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)

	// Storage
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.base_path", "./data/storage")
	viper.SetDefault("storage.local.base_url", "http://localhost:8080")
	viper.SetDefault("storage.local.presign_expiry", 3600)

	// TTS
	viper.SetDefault("tts.api_url", "https://openspeech.bytedance.com/api/v1/tts")
	viper.SetDefault("tts.cluster", "volcano_tts")
	viper.SetDefault("tts.voice_type", "en_female_sarah")
	viper.SetDefault("tts.localized_voice_type", "BV115_streaming")
	viper.SetDefault("tts.sample_rate", 44100)

	// Image
	viper.SetDefault("image.provider", "pollinations")
	viper.SetDefault("image.pollinations.base_url", "https://image.pollinations.ai")
	viper.SetDefault("image.pollinations.model", "flux")

	// Browser automation
	viper.SetDefault("browser.debug_url", "http://127.0.0.1:9222")
	viper.SetDefault("browser.automation_dir", ".chrome-automation-profile")
	viper.SetDefault("browser.poll_interval", "3s")
	viper.SetDefault("browser.completion_window", "120s")
	viper.SetDefault("browser.download_timeout", "60s")

	// Pipeline
	viper.SetDefault("pipeline.work_dir", "./data/pipeline")
	viper.SetDefault("pipeline.narration_strategy", "direct")
	viper.SetDefault("pipeline.visual_path", "image")
	viper.SetDefault("pipeline.fps", 30)
	viper.SetDefault("pipeline.lock_stale_after", "120s")
	viper.SetDefault("pipeline.lock_max_wait", "180s")
	viper.SetDefault("pipeline.watermark_text", "StoryForge AI")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
