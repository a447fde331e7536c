package dto

import "time"

type AddAccountRequest struct {
	Token            string  `json:"token" binding:"required"`
	Email            string  `json:"email" binding:"omitempty,email"`
	Username         string  `json:"username"`
	Name             string  `json:"name"`
	RT               *string `json:"rt"`
	ClientId         *string `json:"client_id"`
	ProxyUrl         *string `json:"proxy_url"`
	Remark           *string `json:"remark"`
	ImageConcurrency *int    `json:"image_concurrency"`
	VideoConcurrency *int    `json:"video_concurrency"`
}

// UpdateAccountRequest 为空的字段不更新
type UpdateAccountRequest struct {
	Token            *string `json:"token"`
	IsActive         *bool   `json:"is_active"`
	ImageEnabled     *bool   `json:"image_enabled"`
	VideoEnabled     *bool   `json:"video_enabled"`
	ImageConcurrency *int    `json:"image_concurrency"`
	VideoConcurrency *int    `json:"video_concurrency"`
	ProxyUrl         *string `json:"proxy_url"`
	Remark           *string `json:"remark"`
}

// AccountView is the admin listing shape; credentials are masked before it
// leaves the process.
type AccountView struct {
	Id                  int        `json:"id"`
	Email               string     `json:"email"`
	Username            string     `json:"username"`
	Name                string     `json:"name"`
	TokenMasked         string     `json:"token_masked"`
	IsActive            bool       `json:"is_active"`
	PlanType            *string    `json:"plan_type"`
	PlanTitle           *string    `json:"plan_title"`
	ExpiryTime          *time.Time `json:"expiry_time"`
	CooledUntil         *time.Time `json:"cooled_until"`
	LastUsedAt          *time.Time `json:"last_used_at"`
	UseCount            int        `json:"use_count"`
	Sora2Supported      *bool      `json:"sora2_supported"`
	Sora2InviteCode     *string    `json:"sora2_invite_code"`
	Sora2RedeemedCount  int        `json:"sora2_redeemed_count"`
	Sora2TotalCount     int        `json:"sora2_total_count"`
	Sora2RemainingCount int        `json:"sora2_remaining_count"`
	Sora2CooldownUntil  *time.Time `json:"sora2_cooldown_until"`
	ImageEnabled        bool       `json:"image_enabled"`
	VideoEnabled        bool       `json:"video_enabled"`
	ImageConcurrency    int        `json:"image_concurrency"`
	VideoConcurrency    int        `json:"video_concurrency"`
	Remark              *string    `json:"remark"`
}
