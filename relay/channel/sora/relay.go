package sora

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/dto"
	"github.com/hancat/sora2api/relay/channel"
)

const maxResponseBytes = 4 * 1024 * 1024

// BuildVideoPayload 视频任务的标准载荷，30fps，默认 15 秒
func BuildVideoPayload(prompt, orientation string, seconds int) *dto.SoraCreateTaskPayload {
	if orientation != OrientationLandscape {
		orientation = OrientationPortrait
	}
	nFrames := DefaultNFrames
	if seconds > 0 {
		nFrames = seconds * FramesPerSecond
	}
	model := VideoModel
	return &dto.SoraCreateTaskPayload{
		Kind:         KindVideo,
		Prompt:       prompt,
		Orientation:  orientation,
		Size:         DefaultSize,
		NFrames:      nFrames,
		InpaintItems: []interface{}{},
		Model:        &model,
	}
}

// BuildImagePayload 图片任务载荷，模型号由上游按 kind 决定
func BuildImagePayload(prompt, orientation string) *dto.SoraCreateTaskPayload {
	if orientation != OrientationLandscape {
		orientation = OrientationPortrait
	}
	return &dto.SoraCreateTaskPayload{
		Kind:         KindImage,
		Prompt:       prompt,
		Orientation:  orientation,
		Size:         DefaultSize,
		NFrames:      1,
		InpaintItems: []interface{}{},
	}
}

// CreateTask 提交生成任务，返回上游任务 id
func CreateTask(ctx context.Context, info *channel.RelayInfo, payload *dto.SoraCreateTaskPayload) (string, error) {
	body, err := common.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "marshal create payload")
	}
	// 视频任务的模型号和尺寸是上游强约束，这里兜底压一遍
	if payload.Kind == KindVideo {
		body, _ = sjson.SetBytes(body, "model", VideoModel)
		body, _ = sjson.SetBytes(body, "size", DefaultSize)
	}

	reqInfo := *info
	reqInfo.Action = ActionCreate
	resp, err := channel.DoTaskApiRequest(ctx, &Adaptor{}, &reqInfo, http.MethodPost, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := channel.ReadResponseBody(resp, maxResponseBytes)
	if err != nil {
		return "", errors.Wrap(err, "read create response")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &channel.UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}

	taskId := gjson.GetBytes(data, "id").String()
	if taskId == "" {
		taskId = gjson.GetBytes(data, "task_id").String()
	}
	if taskId == "" {
		return "", errors.Errorf("create response has no task id: %s", truncate(string(data), 256))
	}
	return taskId, nil
}

// GetTaskProgress 轮询一次任务状态并归一化
func GetTaskProgress(ctx context.Context, info *channel.RelayInfo, taskId string) (*dto.TaskResult, error) {
	reqInfo := *info
	reqInfo.Action = ActionTask
	reqInfo.TaskId = taskId
	resp, err := channel.DoTaskApiRequest(ctx, &Adaptor{}, &reqInfo, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := channel.ReadResponseBody(resp, maxResponseBytes)
	if err != nil {
		return nil, errors.Wrap(err, "read task response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &channel.UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}
	return ParseTaskResult(data), nil
}

// ParseTaskResult 把上游任务详情拍平成统一结构，字段缺失时不报错
func ParseTaskResult(data []byte) *dto.TaskResult {
	r := gjson.ParseBytes(data)
	if t := r.Get("task"); t.Exists() {
		r = t
	}
	result := &dto.TaskResult{
		TaskId:   r.Get("id").String(),
		Progress: r.Get("progress_pct").Float(),
	}
	switch r.Get("status").String() {
	case UpstreamStatusCompleted, UpstreamStatusSucceeded:
		result.Status = constant.TaskStatusSucceeded
		result.Progress = 1
	case UpstreamStatusFailed, UpstreamStatusRejected:
		result.Status = constant.TaskStatusFailed
		result.FailReason = r.Get("failure_reason").String()
		if result.FailReason == "" {
			result.FailReason = r.Get("error.message").String()
		}
	case "":
		result.Status = constant.TaskStatusPending
	default:
		result.Status = constant.TaskStatusRunning
	}
	for _, g := range r.Get("generations").Array() {
		url := g.Get("url").String()
		if url == "" {
			url = g.Get("downloadable_url").String()
		}
		if url == "" {
			url = g.Get("encodings.source.path").String()
		}
		if url != "" {
			result.URLs = append(result.URLs, url)
		}
	}
	return result
}

// AccountProfile 上游账号概况，入池校验时回填账号记录
type AccountProfile struct {
	Email           string
	Username        string
	Name            string
	PlanType        string
	PlanTitle       string
	SubscriptionEnd *time.Time
	Sora2Supported  bool
	InviteCode      string
	RedeemedCount   int
	TotalCount      int
}

// FetchProfile 拉取 /backend/me，字段按多个候选路径宽松解析
func FetchProfile(ctx context.Context, info *channel.RelayInfo) (*AccountProfile, error) {
	reqInfo := *info
	reqInfo.Action = ActionMe
	resp, err := channel.DoTaskApiRequest(ctx, &Adaptor{}, &reqInfo, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := channel.ReadResponseBody(resp, maxResponseBytes)
	if err != nil {
		return nil, errors.Wrap(err, "read profile response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &channel.UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}

	r := gjson.ParseBytes(data)
	if u := r.Get("user"); u.Exists() {
		r = u
	}
	profile := &AccountProfile{
		Email:          firstString(r, "email"),
		Username:       firstString(r, "username"),
		Name:           firstString(r, "name", "display_name"),
		PlanType:       firstString(r, "plan_type", "subscription.plan_type", "plan.id"),
		PlanTitle:      firstString(r, "plan_title", "subscription.plan_title", "plan.title"),
		Sora2Supported: r.Get("can_create_video").Bool() || r.Get("sora2_enabled").Bool() || r.Get("features.video_gen").Bool(),
		InviteCode:     firstString(r, "invite_code.code", "invite.code"),
	}
	profile.RedeemedCount = int(firstInt(r, "invite_code.redeemed_count", "invite.redeemed_count"))
	profile.TotalCount = int(firstInt(r, "invite_code.total_count", "invite.total_count"))
	if end := firstString(r, "subscription_end", "subscription.end_date"); end != "" {
		if ts, err := time.Parse(time.RFC3339, end); err == nil {
			profile.SubscriptionEnd = &ts
		}
	}
	return profile, nil
}

// QuotaSnapshot /backend/nf/limits 的视频余量概况
type QuotaSnapshot struct {
	Remaining int
	Total     int
	ResetAt   *time.Time
}

// FetchLimits 拉取视频配额，回填 sora2 余量和冷却字段
func FetchLimits(ctx context.Context, info *channel.RelayInfo) (*QuotaSnapshot, error) {
	reqInfo := *info
	reqInfo.Action = ActionLimits
	resp, err := channel.DoTaskApiRequest(ctx, &Adaptor{}, &reqInfo, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := channel.ReadResponseBody(resp, maxResponseBytes)
	if err != nil {
		return nil, errors.Wrap(err, "read limits response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &channel.UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(data)}
	}

	r := gjson.ParseBytes(data)
	snapshot := &QuotaSnapshot{
		Remaining: int(firstInt(r, "remaining_count", "video_gen.remaining", "limits.video.remaining")),
		Total:     int(firstInt(r, "total_count", "video_gen.total", "limits.video.total")),
	}
	if reset := firstInt(r, "reset_at", "cooldown_until"); reset > 0 {
		ts := time.Unix(reset, 0)
		snapshot.ResetAt = &ts
	}
	return snapshot, nil
}

func upstreamMessage(data []byte) string {
	msg := gjson.GetBytes(data, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(data, "detail").String()
	}
	if msg == "" {
		msg = string(data)
	}
	return truncate(msg, 512)
}

func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstInt(r gjson.Result, paths ...string) int64 {
	for _, path := range paths {
		if v := r.Get(path); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
