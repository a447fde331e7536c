package model

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hancat/sora2api/constant"
)

// AccountStats 按账号累计的生成与失败计数，today_* 按自然日滚动
type AccountStats struct {
	Id        int   `json:"id"`
	AccountId int   `json:"account_id" gorm:"uniqueIndex"`
	ImageCount int  `json:"image_count" gorm:"default:0"`
	VideoCount int  `json:"video_count" gorm:"default:0"`
	ErrorCount int  `json:"error_count" gorm:"default:0"`
	// 连续失败次数，成功后清零，达到阈值自动停用账号
	ConsecutiveErrors int        `json:"consecutive_errors" gorm:"default:0"`
	TodayImageCount   int        `json:"today_image_count" gorm:"default:0"`
	TodayVideoCount   int        `json:"today_video_count" gorm:"default:0"`
	TodayErrorCount   int        `json:"today_error_count" gorm:"default:0"`
	TodayDate         string     `json:"today_date" gorm:"size:16"`
	LastErrorAt       *time.Time `json:"last_error_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (AccountStats) TableName() string {
	return "account_stats"
}

func statsDate(now time.Time) string {
	return now.Format("2006-01-02")
}

func getOrCreateStats(tx *gorm.DB, accountId int) (*AccountStats, error) {
	stats := AccountStats{AccountId: accountId}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stats).Error
	if err != nil {
		return nil, err
	}
	err = tx.First(&stats, "account_id = ?", accountId).Error
	return &stats, err
}

func (s *AccountStats) rollover(now time.Time) {
	today := statsDate(now)
	if s.TodayDate != today {
		s.TodayDate = today
		s.TodayImageCount = 0
		s.TodayVideoCount = 0
		s.TodayErrorCount = 0
	}
}

// RecordGenerationSuccess bumps the per-kind counters and clears the
// consecutive-error streak.
func RecordGenerationSuccess(accountId int, kind constant.GenerationKind) error {
	now := time.Now()
	return DB.Transaction(func(tx *gorm.DB) error {
		stats, err := getOrCreateStats(tx, accountId)
		if err != nil {
			return err
		}
		stats.rollover(now)
		if kind == constant.GenerationVideo {
			stats.VideoCount++
			stats.TodayVideoCount++
		} else {
			stats.ImageCount++
			stats.TodayImageCount++
		}
		stats.ConsecutiveErrors = 0
		return tx.Save(stats).Error
	})
}

// RecordGenerationError bumps the error counters and returns the new
// consecutive-error streak so the caller can decide about auto-disable.
func RecordGenerationError(accountId int) (int, error) {
	now := time.Now()
	streak := 0
	err := DB.Transaction(func(tx *gorm.DB) error {
		stats, err := getOrCreateStats(tx, accountId)
		if err != nil {
			return err
		}
		stats.rollover(now)
		stats.ErrorCount++
		stats.TodayErrorCount++
		stats.ConsecutiveErrors++
		stats.LastErrorAt = &now
		streak = stats.ConsecutiveErrors
		return tx.Save(stats).Error
	})
	return streak, err
}

func GetAccountStats(accountId int) (*AccountStats, error) {
	var stats AccountStats
	err := DB.First(&stats, "account_id = ?", accountId).Error
	return &stats, err
}

func GetAllAccountStats() ([]*AccountStats, error) {
	var stats []*AccountStats
	err := DB.Find(&stats).Error
	return stats, err
}

// StatsTotals 聚合给 /v1/stats 用
type StatsTotals struct {
	ImageCount      int `json:"image_count"`
	VideoCount      int `json:"video_count"`
	ErrorCount      int `json:"error_count"`
	TodayImageCount int `json:"today_image_count"`
	TodayVideoCount int `json:"today_video_count"`
	TodayErrorCount int `json:"today_error_count"`
}

func SumAccountStats() (*StatsTotals, error) {
	all, err := GetAllAccountStats()
	if err != nil {
		return nil, err
	}
	totals := &StatsTotals{}
	today := statsDate(time.Now())
	for _, s := range all {
		totals.ImageCount += s.ImageCount
		totals.VideoCount += s.VideoCount
		totals.ErrorCount += s.ErrorCount
		if s.TodayDate == today {
			totals.TodayImageCount += s.TodayImageCount
			totals.TodayVideoCount += s.TodayVideoCount
			totals.TodayErrorCount += s.TodayErrorCount
		}
	}
	return totals, nil
}
