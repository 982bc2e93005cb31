package t2i

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// PollinationsClient 免费图片生成端点客户端（无需密钥）
// 默认提供方：没有配额依赖，接口就是一个带参数的 GET
type PollinationsClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewPollinationsClient 创建 Pollinations 客户端
func NewPollinationsClient(baseURL, model string) *PollinationsClient {
	if baseURL == "" {
		baseURL = "https://image.pollinations.ai"
	}
	if model == "" {
		model = "flux"
	}
	return &PollinationsClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Generate 生成一张图片
// 端点偶发超时，最多重试 3 次，间隔递增
func (c *PollinationsClient) Generate(ctx context.Context, prompt string, width, height, seed int) ([]byte, error) {
	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&seed=%d&nologo=true&model=%s",
		c.baseURL, url.PathEscape(prompt), width, height, seed, c.model)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		data, err := c.fetch(ctx, imageURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("pollinations fetch failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 3 * time.Second):
		}
	}
	return nil, fmt.Errorf("pollinations fetch failed after 3 attempts: %w", lastErr)
}

func (c *PollinationsClient) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; StoryForge/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from pollinations", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// 出错时端点可能返回一小段 HTML 而不是图片
	if len(data) < 100 {
		return nil, fmt.Errorf("response too small (%d bytes), likely an error page", len(data))
	}
	return data, nil
}
