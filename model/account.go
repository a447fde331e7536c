package model

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hancat/sora2api/constant"
)

// Account 一个可调度的上游 ChatGPT/Sora 账号
type Account struct {
	Id       int    `json:"id"`
	Email    string `json:"email" gorm:"uniqueIndex;size:255"`
	Token    string `json:"token" gorm:"type:text"`
	Username string `json:"username" gorm:"size:255"`
	Name     string `json:"name" gorm:"size:255"`

	ST       *string `json:"st" gorm:"type:text"`
	RT       *string `json:"rt" gorm:"type:text"`
	ClientId *string `json:"client_id" gorm:"size:255"`
	ProxyUrl *string `json:"proxy_url" gorm:"size:512"`
	Remark   *string `json:"remark" gorm:"size:512"`

	ExpiryTime  *time.Time `json:"expiry_time"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	CooledUntil *time.Time `json:"cooled_until"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	UseCount    int        `json:"use_count" gorm:"default:0"`

	PlanType        *string    `json:"plan_type" gorm:"size:64"`
	PlanTitle       *string    `json:"plan_title" gorm:"size:128"`
	SubscriptionEnd *time.Time `json:"subscription_end"`

	Sora2Supported      *bool      `json:"sora2_supported"`
	Sora2InviteCode     *string    `json:"sora2_invite_code" gorm:"size:64"`
	Sora2RedeemedCount  int        `json:"sora2_redeemed_count" gorm:"default:0"`
	Sora2TotalCount     int        `json:"sora2_total_count" gorm:"default:0"`
	Sora2RemainingCount int        `json:"sora2_remaining_count" gorm:"default:0"`
	Sora2CooldownUntil  *time.Time `json:"sora2_cooldown_until"`

	ImageEnabled bool `json:"image_enabled" gorm:"default:true"`
	VideoEnabled bool `json:"video_enabled" gorm:"default:true"`
	// -1 表示不限并发
	ImageConcurrency int `json:"image_concurrency" gorm:"default:-1"`
	VideoConcurrency int `json:"video_concurrency" gorm:"default:-1"`
}

func (Account) TableName() string {
	return "accounts"
}

// IsEligible reports whether the account may serve any request at now:
// active, not cooling down, not expired.
func (a *Account) IsEligible(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	if a.CooledUntil != nil && a.CooledUntil.After(now) {
		return false
	}
	if a.ExpiryTime != nil && !a.ExpiryTime.After(now) {
		return false
	}
	return true
}

func (a *Account) SupportsSora2() bool {
	return a.Sora2Supported != nil && *a.Sora2Supported
}

// Sora2Cooling 仍在视频配额冷却期内
func (a *Account) Sora2Cooling(now time.Time) bool {
	return a.Sora2CooldownUntil != nil && a.Sora2CooldownUntil.After(now)
}

// Sora2CooldownElapsed 设置过冷却且已经到期，需要触发配额恢复
func (a *Account) Sora2CooldownElapsed(now time.Time) bool {
	return a.Sora2CooldownUntil != nil && !a.Sora2CooldownUntil.After(now)
}

func (a *Account) Sora2Remaining() int {
	return a.Sora2RemainingCount
}

// ConcurrencyLimit returns the per-feature cap, -1 meaning unlimited.
func (a *Account) ConcurrencyLimit(kind constant.GenerationKind) int {
	if kind == constant.GenerationVideo {
		return a.VideoConcurrency
	}
	return a.ImageConcurrency
}

func (a *Account) FeatureEnabled(kind constant.GenerationKind) bool {
	if kind == constant.GenerationVideo {
		return a.VideoEnabled
	}
	return a.ImageEnabled
}

func (a *Account) Insert() error {
	return DB.Create(a).Error
}

func (a *Account) Update() error {
	return DB.Model(a).Updates(a).Error
}

func (a *Account) Delete() error {
	if a.Id == 0 {
		return errors.New("id 为空！")
	}
	tx := DB.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()
	if err := tx.Delete(a).Error; err != nil {
		tx.Rollback()
		return err
	}
	// 关联统计一起清掉
	if err := tx.Where("account_id = ?", a.Id).Delete(&AccountStats{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func GetAllAccounts() ([]*Account, error) {
	var accounts []*Account
	err := DB.Order("id asc").Find(&accounts).Error
	return accounts, err
}

func GetAccountsPaged(startIdx int, num int) ([]*Account, int64, error) {
	var accounts []*Account
	var total int64
	if err := DB.Model(&Account{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := DB.Order("id desc").Limit(num).Offset(startIdx).Find(&accounts).Error
	return accounts, total, err
}

func GetAccountById(id int) (*Account, error) {
	if id == 0 {
		return nil, errors.New("id 为空！")
	}
	account := Account{Id: id}
	err := DB.First(&account, "id = ?", id).Error
	return &account, err
}

func GetAccountByEmail(email string) (*Account, error) {
	if email == "" {
		return nil, errors.New("email 为空！")
	}
	var account Account
	err := DB.First(&account, "email = ?", email).Error
	return &account, err
}

// UpdateAccountFields applies a partial column update.
func UpdateAccountFields(id int, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return DB.Model(&Account{}).Where("id = ?", id).Updates(fields).Error
}

// MarkAccountUsed bumps the usage bookkeeping after a successful dispatch.
func MarkAccountUsed(id int) error {
	now := time.Now()
	return DB.Model(&Account{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"last_used_at": now,
		"use_count":    gorm.Expr("use_count + 1"),
	}).Error
}

// AccountStore is the persistence boundary the cache and the schedulers see;
// tests substitute it with in-memory fakes.
type AccountStore interface {
	GetAllAccounts() ([]*Account, error)
	GetAccountById(id int) (*Account, error)
	UpdateAccountFields(id int, fields map[string]interface{}) error
}

type dbAccountStore struct{}

// NewAccountStore returns the gorm-backed store.
func NewAccountStore() AccountStore {
	return dbAccountStore{}
}

func (dbAccountStore) GetAllAccounts() ([]*Account, error) {
	return GetAllAccounts()
}

func (dbAccountStore) GetAccountById(id int) (*Account, error) {
	return GetAccountById(id)
}

func (dbAccountStore) UpdateAccountFields(id int, fields map[string]interface{}) error {
	return UpdateAccountFields(id, fields)
}
