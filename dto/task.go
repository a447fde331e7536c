package dto

type ChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// StringContent 兼容 content 为字符串或分段数组两种形态
func (m *ChatMessage) StringContent() string {
	switch v := m.Content.(type) {
	case string:
		return v
	case []interface{}:
		for _, part := range v {
			p, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if p["type"] == "text" {
				if text, ok := p["text"].(string); ok {
					return text
				}
			}
		}
	}
	return ""
}

type ChatCompletionRequest struct {
	Model    string        `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required,min=1"`
	Stream   bool          `json:"stream"`
	// 非标准扩展字段，控制生成形态
	Orientation string `json:"orientation" binding:"omitempty,orientation"`
	Seconds     int    `json:"seconds" binding:"omitempty,min=0"`
}

// PromptText returns the last user message, which drives the generation.
func (r *ChatCompletionRequest) PromptText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].StringContent()
		}
	}
	return ""
}

type ChatResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	Id      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

type ChatStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChatCompletionStreamChoice struct {
	Index        int             `json:"index"`
	Delta        ChatStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type ChatCompletionStreamResponse struct {
	Id      string                       `json:"id"`
	Object  string                       `json:"object"`
	Created int64                        `json:"created"`
	Model   string                       `json:"model"`
	Choices []ChatCompletionStreamChoice `json:"choices"`
}

// SoraCreateTaskPayload is the body of POST {sora_base}/backend/nf/create.
// 空字段按上游的习惯显式发 null，不省略
type SoraCreateTaskPayload struct {
	Kind              string        `json:"kind"`
	Prompt            string        `json:"prompt"`
	Title             *string       `json:"title"`
	Orientation       string        `json:"orientation"`
	Size              string        `json:"size"`
	NFrames           int           `json:"n_frames"`
	InpaintItems      []interface{} `json:"inpaint_items"`
	RemixTargetId     *string       `json:"remix_target_id"`
	Metadata          interface{}   `json:"metadata"`
	CameoIds          []string      `json:"cameo_ids"`
	CameoReplacements interface{}   `json:"cameo_replacements"`
	Model             *string       `json:"model"`
	StyleId           *string       `json:"style_id"`
	AudioCaption      *string       `json:"audio_caption"`
	AudioTranscript   *string       `json:"audio_transcript"`
	VideoCaption      *string       `json:"video_caption"`
	StoryboardId      *string       `json:"storyboard_id"`
}

// TaskResult is the normalized outcome of one create-and-poll round trip.
type TaskResult struct {
	TaskId   string   `json:"task_id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	URLs     []string `json:"urls"`
	// 本地缓存命中时与 URLs 一一对应，否则为空
	LocalURLs  []string `json:"local_urls,omitempty"`
	FailReason string   `json:"fail_reason,omitempty"`
}
