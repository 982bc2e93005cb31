package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"storyforge/internal/pkg/id"
)

// Config 直连语音合成配置
type Config struct {
	APIURL      string // API 地址，默认: https://openspeech.bytedance.com/api/v1/tts
	AccessToken string // 访问令牌（必需）
	AppID       string // 应用ID（可选）
	Cluster     string // 集群名称，默认: volcano_tts
	VoiceType   string // 默认音色
	SampleRate  int    // 采样率，默认: 44100
}

// Client 语音合成客户端
// 旁白阶段的直连策略：调用托管 TTS 端点，解码返回的音频负载
type Client struct {
	apiURL      string
	accessToken string
	appID       string
	cluster     string
	voiceType   string
	sampleRate  int
	httpClient  *http.Client
}

// NewClient 创建语音合成客户端
func NewClient(config Config) (*Client, error) {
	if config.AccessToken == "" {
		return nil, fmt.Errorf("TTS access token is required")
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = "https://openspeech.bytedance.com/api/v1/tts"
	}

	cluster := config.Cluster
	if cluster == "" {
		cluster = "volcano_tts"
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}

	return &Client{
		apiURL:      apiURL,
		accessToken: config.AccessToken,
		appID:       config.AppID,
		cluster:     cluster,
		voiceType:   config.VoiceType,
		sampleRate:  sampleRate,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Result 语音合成结果
type Result struct {
	AudioData []byte  // 音频数据（mp3）
	Duration  float64 // 音频时长（秒），0 表示接口未返回
	VoiceType string  // 实际使用的音色
}

// Synthesize 合成一段旁白音频
// voiceType 为空时使用客户端默认音色
func (c *Client) Synthesize(ctx context.Context, text, voiceType string) (*Result, error) {
	if voiceType == "" {
		voiceType = c.voiceType
	}

	requestID := id.New()
	reqBody, err := json.Marshal(c.buildRequest(text, voiceType, requestID))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer; %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("request_id", requestID).
		Str("voice_type", voiceType).
		Int("text_len", len([]rune(text))).
		Msg("sending TTS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS request failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Code     float64         `json:"code"`
		Message  string          `json:"message"`
		Data     string          `json:"data"`
		Addition json.RawMessage `json:"addition"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if apiResp.Code != 3000 {
		message := apiResp.Message
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("TTS response error: %s (code: %.0f)", message, apiResp.Code)
	}

	if apiResp.Data == "" {
		return nil, fmt.Errorf("audio data not found in response")
	}

	audioData, err := base64.StdEncoding.DecodeString(apiResp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio data: %w", err)
	}

	return &Result{
		AudioData: audioData,
		Duration:  parseDuration(apiResp.Addition),
		VoiceType: voiceType,
	}, nil
}

// buildRequest 构建请求体
// 参考官方文档: https://openspeech.bytedance.com/api/v1/tts
func (c *Client) buildRequest(text, voiceType, requestID string) map[string]interface{} {
	appConfig := map[string]interface{}{
		"token":   c.accessToken,
		"cluster": c.cluster,
	}
	if c.appID != "" {
		appConfig["appid"] = c.appID
	}

	return map[string]interface{}{
		"app":  appConfig,
		"user": map[string]interface{}{"uid": requestID},
		"audio": map[string]interface{}{
			"voice_type":   voiceType,
			"encoding":     "mp3",
			"rate":         c.sampleRate,
			"speed_ratio":  1.0,
			"volume_ratio": 1.0,
			"pitch_ratio":  1.0,
		},
		"request": map[string]interface{}{
			"reqid":     requestID,
			"text":      text,
			"text_type": "plain",
			"operation": "query",
		},
	}
}

// parseDuration 从 addition 字段解析音频时长（接口返回毫秒）
func parseDuration(addition json.RawMessage) float64 {
	if len(addition) == 0 {
		return 0
	}
	var fields struct {
		Duration json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal(addition, &fields); err != nil {
		return 0
	}

	// duration 可能是字符串或数字
	var asString string
	if err := json.Unmarshal(fields.Duration, &asString); err == nil {
		if ms, err := strconv.ParseFloat(asString, 64); err == nil {
			return ms / 1000.0
		}
		return 0
	}
	var asNumber float64
	if err := json.Unmarshal(fields.Duration, &asNumber); err == nil {
		return asNumber / 1000.0
	}
	return 0
}
