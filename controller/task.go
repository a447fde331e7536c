package controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/dto"
	"github.com/hancat/sora2api/logger"
	relaychannel "github.com/hancat/sora2api/relay/channel"
	"github.com/hancat/sora2api/service"
)

// resolveGenerationKind 模型名里带 image 的走图片，其余一律按视频处理
func resolveGenerationKind(model string) constant.GenerationKind {
	if strings.Contains(strings.ToLower(model), "image") {
		return constant.GenerationImage
	}
	return constant.GenerationVideo
}

func openAiError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "sora2api_error",
		},
	})
}

func generationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoAccountAvailable):
		return http.StatusServiceUnavailable, service.ErrNoAccountAvailable.Error()
	case errors.Is(err, service.ErrGenerationTimeout):
		return http.StatusGatewayTimeout, "生成任务等待超时，请稍后重试"
	}
	var ue *relaychannel.UpstreamError
	if errors.As(err, &ue) {
		status := ue.StatusCode
		if status < http.StatusBadRequest || status > 599 {
			status = http.StatusBadGateway
		}
		return status, ue.Message
	}
	return http.StatusInternalServerError, err.Error()
}

func renderResultContent(kind constant.GenerationKind, result *dto.TaskResult) string {
	if result.Status == constant.TaskStatusFailed {
		reason := result.FailReason
		if reason == "" {
			reason = "上游拒绝了这次生成"
		}
		return "生成失败：" + reason
	}
	urls := result.URLs
	// 本地缓存全部落盘成功才改用本地地址
	if len(result.LocalURLs) == len(urls) && len(urls) > 0 {
		urls = result.LocalURLs
	}
	if len(urls) == 0 {
		return "生成完成，但上游没有返回产物地址"
	}
	var b strings.Builder
	for i, u := range urls {
		if i > 0 {
			b.WriteString("\n")
		}
		if kind == constant.GenerationVideo {
			fmt.Fprintf(&b, "[video](%s)", u)
		} else {
			fmt.Fprintf(&b, "![image](%s)", u)
		}
	}
	return b.String()
}

// ChatCompletions OpenAI 兼容入口，把对话请求翻译成一次生成任务
func ChatCompletions(c *gin.Context) {
	var req dto.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		openAiError(c, http.StatusBadRequest, "参数错误："+err.Error())
		return
	}
	prompt := req.PromptText()
	if strings.TrimSpace(prompt) == "" {
		openAiError(c, http.StatusBadRequest, "messages 里找不到可用的 user 文本")
		return
	}

	opts := service.GenerationOptions{
		Kind:        resolveGenerationKind(req.Model),
		Prompt:      prompt,
		Orientation: req.Orientation,
		Seconds:     req.Seconds,
	}
	common.SetContextKey(c, constant.ContextKeyGenerationKind, string(opts.Kind))
	if req.Stream {
		streamGeneration(c, &req, opts)
		return
	}
	blockingGeneration(c, &req, opts)
}

func blockingGeneration(c *gin.Context, req *dto.ChatCompletionRequest, opts service.GenerationOptions) {
	result, err := generation.Generate(c.Request.Context(), opts, nil)
	if err != nil {
		status, message := generationErrorStatus(err)
		openAiError(c, status, message)
		return
	}
	common.SetContextKey(c, constant.ContextKeyTaskId, result.TaskId)
	content := renderResultContent(opts.Kind, result)
	c.JSON(http.StatusOK, dto.ChatCompletionResponse{
		Id:      "chatcmpl-" + common.GetUUID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []dto.ChatCompletionChoice{{
			Index:        0,
			Message:      dto.ChatResponseMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: service.BuildUsage(opts.Prompt, content),
	})
}

func setEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

func writeStreamChunk(c *gin.Context, chunk *dto.ChatCompletionStreamResponse) {
	data, err := common.Marshal(chunk)
	if err != nil {
		logger.LogError(c.Request.Context(), "marshal stream chunk failed:", err.Error())
		return
	}
	_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func writeStreamDone(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func streamGeneration(c *gin.Context, req *dto.ChatCompletionRequest, opts service.GenerationOptions) {
	setEventStreamHeaders(c)
	id := "chatcmpl-" + common.GetUUID()
	created := time.Now().Unix()

	newChunk := func(delta dto.ChatStreamDelta, finish *string) *dto.ChatCompletionStreamResponse {
		return &dto.ChatCompletionStreamResponse{
			Id:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []dto.ChatCompletionStreamChoice{{
				Index:        0,
				Delta:        delta,
				FinishReason: finish,
			}},
		}
	}

	writeStreamChunk(c, newChunk(dto.ChatStreamDelta{Role: "assistant"}, nil))

	// 进度只在整数百分比前进时推一帧，避免刷屏
	lastPct := -1
	onProgress := func(progress float64, status string) {
		pct := int(progress * 100)
		if pct <= lastPct || status == constant.TaskStatusSucceeded || status == constant.TaskStatusFailed {
			return
		}
		lastPct = pct
		writeStreamChunk(c, newChunk(dto.ChatStreamDelta{
			Content: fmt.Sprintf("> 生成进度 %d%%\n", pct),
		}, nil))
	}

	result, err := generation.Generate(c.Request.Context(), opts, onProgress)
	if err != nil {
		_, message := generationErrorStatus(err)
		writeStreamChunk(c, newChunk(dto.ChatStreamDelta{Content: "生成失败：" + message}, nil))
		finish := "stop"
		writeStreamChunk(c, newChunk(dto.ChatStreamDelta{}, &finish))
		writeStreamDone(c)
		return
	}
	common.SetContextKey(c, constant.ContextKeyTaskId, result.TaskId)

	content := renderResultContent(opts.Kind, result)
	writeStreamChunk(c, newChunk(dto.ChatStreamDelta{Content: "\n" + content}, nil))
	finish := "stop"
	writeStreamChunk(c, newChunk(dto.ChatStreamDelta{}, &finish))
	writeStreamDone(c)
}
