package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"storyforge/internal/model/pipeline"
)

// SceneCount 根据目标时长计算场景数：每 30 秒一个场景，至少 3 个
func SceneCount(durationSecs int) int {
	n := durationSecs / 30
	if n < 3 {
		n = 3
	}
	return n
}

// genreTones 题材到叙事基调的映射，用于拼装提示词
var genreTones = map[string]string{
	"horror":      "unsettling and suspenseful, building dread scene by scene",
	"comedy":      "lighthearted and witty, with a punchline in every scene",
	"documentary": "informative and measured, grounded in concrete facts",
	"drama":       "emotionally charged, character-driven with rising tension",
	"scifi":       "wondrous and speculative, grounded in plausible technology",
	"mystery":     "enigmatic, revealing clues gradually and withholding answers",
}

func toneFor(genre string) string {
	if tone, ok := genreTones[strings.ToLower(genre)]; ok {
		return tone
	}
	return "engaging and vivid, suitable for a general audience"
}

// ScriptService 脚本生成
// chatModel 为空时使用本地确定性生成（无 API Key 的离线模式）
type ScriptService struct {
	chatModel model.ChatModel
}

// NewScriptService 创建脚本服务
func NewScriptService(chatModel model.ChatModel) *ScriptService {
	return &ScriptService{chatModel: chatModel}
}

// scriptPayload LLM 返回的结构化脚本
type scriptPayload struct {
	Title  string `json:"title"`
	Scenes []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"scenes"`
}

// Generate 根据主题生成分场景脚本
// 场景时长按目标总时长均分，余数摊到最后一个场景
func (s *ScriptService) Generate(ctx context.Context, run *pipeline.Run) (string, []pipeline.Scene, error) {
	count := SceneCount(run.DurationSecs)

	if s.chatModel == nil {
		log.Warn().Str("run_id", run.ID).Msg("no chat model configured, using offline script generator")
		title, scenes := offlineScript(run.Theme, run.Genre, count, run.DurationSecs)
		return title, scenes, nil
	}

	prompt := buildScriptPrompt(run.Theme, run.Genre, count, run.DurationSecs)
	messages := []*schema.Message{schema.UserMessage(prompt)}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", nil, externalErr("script", err)
	}

	payload, err := parseScriptResponse(response.Content)
	if err != nil {
		return "", nil, externalErr("script", err)
	}

	scenes := make([]pipeline.Scene, 0, count)
	durations := splitDuration(run.DurationSecs, count)
	for i := 0; i < count; i++ {
		scene := pipeline.Scene{
			ID:              i + 1,
			Title:           fmt.Sprintf("Scene %d", i+1),
			Content:         "",
			DurationSeconds: durations[i],
		}
		if i < len(payload.Scenes) {
			if t := strings.TrimSpace(payload.Scenes[i].Title); t != "" {
				scene.Title = t
			}
			scene.Content = strings.TrimSpace(payload.Scenes[i].Content)
		}
		scenes = append(scenes, scene)
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = run.Theme
	}
	return title, scenes, nil
}

// RegenerateScene 重新生成单个场景的内容，保留标题和时长
func (s *ScriptService) RegenerateScene(ctx context.Context, run *pipeline.Run, scene *pipeline.Scene) (string, error) {
	if s.chatModel == nil {
		_, scenes := offlineScript(run.Theme, run.Genre, len(run.Scenes), run.DurationSecs)
		return scenes[(scene.ID-1)%len(scenes)].Content, nil
	}

	prompt := fmt.Sprintf(`Rewrite one scene of a short-form video script.
Theme: %s
Tone: %s
Scene title: %s
Target narration length: about %d seconds of speech.

Return only the narration text for this scene, no markup, no scene number.`,
		run.Theme, toneFor(run.Genre), scene.Title, scene.DurationSeconds)

	response, err := s.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", externalErr("script", err)
	}

	content := strings.TrimSpace(stripCodeFence(response.Content))
	if content == "" {
		return "", externalErr("script", fmt.Errorf("model returned empty scene content"))
	}
	return content, nil
}

func buildScriptPrompt(theme, genre string, count, durationSecs int) string {
	return fmt.Sprintf(`You are a short-form video scriptwriter.
Write a script for a vertical short video about: %s
Tone: %s
The video is about %d seconds long and must be split into exactly %d scenes.
Each scene's narration should take roughly %d seconds to read aloud.

Respond with JSON only, in this shape:
{"title": "...", "scenes": [{"title": "...", "content": "..."}]}`,
		theme, toneFor(genre), durationSecs, count, durationSecs/count)
}

// parseScriptResponse 解析模型输出，容忍 markdown 代码块包裹
func parseScriptResponse(content string) (*scriptPayload, error) {
	cleaned := stripCodeFence(content)

	var payload scriptPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		// 模型偶尔在 JSON 前后夹带说明文字，截取最外层花括号再试一次
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err2 == nil {
				err = nil
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parse script response: %w", err)
		}
	}
	if len(payload.Scenes) == 0 {
		return nil, fmt.Errorf("script response contains no scenes")
	}
	return &payload, nil
}

// stripCodeFence 去掉 ```json ... ``` 包裹
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// splitDuration 将总时长均分到各场景，余数加在最后一个
func splitDuration(total, count int) []int {
	base := total / count
	out := make([]int, count)
	for i := range out {
		out[i] = base
	}
	out[count-1] += total - base*count
	return out
}

// offlineScript 无模型时的确定性脚本生成
func offlineScript(theme, genre string, count, durationSecs int) (string, []pipeline.Scene) {
	durations := splitDuration(durationSecs, count)
	scenes := make([]pipeline.Scene, count)
	beats := []string{
		"opens with a striking hook about %s, pulling the viewer in immediately.",
		"dives deeper into %s, laying out the single most surprising detail.",
		"shows what %s means in practice, with one concrete example.",
		"raises the stakes around %s and hints at what comes next.",
		"closes on %s with a takeaway the viewer will remember.",
	}
	for i := range scenes {
		beat := beats[i%len(beats)]
		scenes[i] = pipeline.Scene{
			ID:              i + 1,
			Title:           fmt.Sprintf("Scene %d", i+1),
			Content:         fmt.Sprintf("This scene "+beat+" The tone stays %s throughout.", theme, toneFor(genre)),
			DurationSeconds: durations[i],
		}
	}
	return theme, scenes
}
