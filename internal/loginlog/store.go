// Package loginlog 实现登录日志的追加式存储与检索
package loginlog

import (
	"context"
	"fmt"
	"time"

	"tpadmin/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store 登录日志存储。记录一经写入不再修改或删除，保留与清退由外部策略负责。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore 创建登录日志存储
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Store{db: db, logger: logger}
}

// AutoMigrate 执行登录日志表迁移
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&models.LoginHistory{}); err != nil {
		return fmt.Errorf("登录日志表迁移失败: %w", err)
	}
	return nil
}

// Record 写入一条登录日志，每次登录尝试恰好一条
func (s *Store) Record(ctx context.Context, record *models.LoginHistory) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreateTime.IsZero() {
		record.CreateTime = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Error("写入登录日志失败",
			zap.String("userName", record.UserName),
			zap.Error(err))
		return fmt.Errorf("写入登录日志失败: %w", err)
	}
	return nil
}

// Search 按过滤条件分页检索登录日志，时间范围为闭区间，
// startTime晚于endTime时直接返回空页而不是报错。
func (s *Store) Search(ctx context.Context, filter models.LoginHistoryFilter) (*models.PageResult[models.LoginHistory], error) {
	filter.Normalize()

	if InvertedTimeRange(filter.StartTime, filter.EndTime) {
		return models.EmptyPage[models.LoginHistory](filter.Page, filter.PageSize), nil
	}

	query := s.db.WithContext(ctx).Model(&models.LoginHistory{})
	query = applyFilter(query, &filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计登录日志失败: %w", err)
	}

	offset, ok := models.PageWindow(total, filter.Page, filter.PageSize)
	if !ok {
		result := models.EmptyPage[models.LoginHistory](filter.Page, filter.PageSize)
		result.Total = total
		return result, nil
	}

	var records []models.LoginHistory
	err := query.Order("create_time DESC").Offset(offset).Limit(filter.PageSize).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("查询登录日志失败: %w", err)
	}
	if records == nil {
		records = []models.LoginHistory{}
	}

	return &models.PageResult[models.LoginHistory]{
		Records: records,
		Total:   total,
		Current: filter.Page,
		Size:    filter.PageSize,
	}, nil
}

// applyFilter 拼接查询条件，未设置的字段不参与过滤
func applyFilter(query *gorm.DB, filter *models.LoginHistoryFilter) *gorm.DB {
	if filter.UserName != "" {
		query = query.Where("user_name LIKE ?", "%"+filter.UserName+"%")
	}
	if filter.UserRealName != "" {
		query = query.Where("user_real_name LIKE ?", "%"+filter.UserRealName+"%")
	}
	if filter.IP != "" {
		query = query.Where("ip = ?", filter.IP)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.StartTime.IsZero() {
		query = query.Where("create_time >= ?", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		query = query.Where("create_time <= ?", filter.EndTime)
	}
	return query
}

// InvertedTimeRange 判断时间范围是否颠倒
func InvertedTimeRange(start, end time.Time) bool {
	return !start.IsZero() && !end.IsZero() && start.After(end)
}
