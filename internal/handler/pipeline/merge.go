package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storyforge/internal/pkg/ffmpeg"
	"storyforge/internal/repository/run"
	pipelinesvc "storyforge/internal/service/pipeline"
)

// MergeRequest 按需合成请求
// run_id 和 video_paths 二选一：给 run_id 用该运行的场景产物合成，
// 给 video_paths 则按显式清单合成（不关联任何运行）
type MergeRequest struct {
	RunID         string   `json:"run_id"`
	VideoPaths    []string `json:"video_paths"`
	AudioPaths    []string `json:"audio_paths"`
	Orientation   string   `json:"orientation"` // portrait（默认）/ landscape
	AddWatermark  bool     `json:"add_watermark"`
	WatermarkText string   `json:"watermark_text"`
	ProjectName   string   `json:"project_name"`
}

// MergeRun 按需合成成片
// @Summary      手动合成成片
// @Description  不走完整编排，直接合成一次成片。传 run_id 用该运行的现有场景产物（视觉产物缺失的场景被跳过）；传 video_paths 按显式文件清单合成。主合并命令失败时自动降级为无滤镜直拷。
// @Tags         流水线
// @Accept       json
// @Produce      json
// @Param        request  body      MergeRequest  true  "合成参数"
// @Success      200      {object}  map[string]interface{}  "合成报告"
// @Failure      400      {object}  ErrorResponse  "请求参数错误或运行状态不允许"
// @Failure      404      {object}  ErrorResponse  "运行不存在"
// @Failure      500      {object}  ErrorResponse  "编码失败"
// @Router       /api/v1/pipeline/merge [post]
func (h *Handler) MergeRun(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}
	if req.RunID == "" && len(req.VideoPaths) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Either run_id or video_paths is required",
		})
		return
	}

	var (
		report interface{}
		err    error
	)
	if req.RunID != "" {
		report, err = h.pipelineService.MergeRun(c.Request.Context(), req.RunID)
	} else {
		watermark := ""
		if req.AddWatermark {
			watermark = req.WatermarkText
		}
		report, err = h.pipelineService.MergeFiles(c.Request.Context(), &pipelinesvc.MergeFilesRequest{
			VideoPaths:    req.VideoPaths,
			AudioPaths:    req.AudioPaths,
			Orientation:   req.Orientation,
			WatermarkText: watermark,
			ProjectName:   req.ProjectName,
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, run.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    40401,
				Message: "Run not found",
			})
		case errors.Is(err, ffmpeg.ErrNotInstalled):
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Code:    50002,
				Message: "ffmpeg is not installed",
			})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Code:    50001,
				Message: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "合成完成",
		"data":    report,
	})
}
