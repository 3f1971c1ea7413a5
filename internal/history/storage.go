// Package history 实现线程池记录的追加式本地存储，服务于搜索与分页
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"tpadmin/internal/models"
	"tpadmin/pkg/utils"

	"github.com/dgraph-io/badger/v3"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config 定义历史存储的配置选项
type Config struct {
	// DataDir 指定数据存储的目录
	DataDir string

	// RetentionDays 指定数据保留的天数
	RetentionDays int

	// InMemory 使用纯内存模式，不落盘
	InMemory bool

	// Logger 日志记录器
	Logger *zap.Logger
}

// Storage 线程池历史记录存储，每次采集追加一条记录，写入后不再修改
type Storage struct {
	config     Config
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	logger     *zap.Logger

	db *badger.DB
}

// 键前缀定义
const poolRecordPrefix = "pool:"

// New 创建一个新的历史存储实例
func New(config Config) (*Storage, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
		opts = badger.DefaultOptions(filepath.Join(config.DataDir, "badger"))
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开BadgerDB失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return &Storage{
		config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
		db:         db,
		logger:     logger,
	}, nil
}

// Start 启动历史存储
func (s *Storage) Start() error {
	s.wg.Add(1)
	go s.runRetentionCleaner()

	s.logger.Info("历史存储已启动", zap.Int("retentionDays", s.config.RetentionDays))
	return nil
}

// Stop 停止历史存储
func (s *Storage) Stop() error {
	s.cancelFunc()
	s.wg.Wait()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("关闭BadgerDB失败", zap.Error(err))
			return fmt.Errorf("关闭BadgerDB失败: %w", err)
		}
	}

	s.logger.Info("历史存储已停止")
	return nil
}

// StorePoolRecord 追加一条线程池历史记录
func (s *Storage) StorePoolRecord(stats *models.ThreadPoolStats) error {
	// 键：前缀 + 客户端ID + 池名 + 时间戳
	key := fmt.Sprintf("%s%s:%s:%d", poolRecordPrefix, stats.ClientID, stats.PoolName, stats.UpdateTime.UnixNano())

	data, err := json.Marshal(stats)
	if err != nil {
		s.logger.Error("序列化线程池记录失败", zap.Error(err))
		return fmt.Errorf("序列化线程池记录失败: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		s.logger.Error("存储线程池记录失败", zap.Error(err))
		return fmt.Errorf("存储线程池记录失败: %w", err)
	}

	s.logger.Debug("存储线程池记录成功",
		zap.String("clientId", stats.ClientID),
		zap.String("poolName", stats.PoolName),
		zap.Time("updateTime", stats.UpdateTime))

	return nil
}

// QueryPoolRecords 按过滤条件检索历史记录并分页，时间范围为闭区间，
// 结果按记录时间倒序。超出总数的页返回空列表与正确的total。
func (s *Storage) QueryPoolRecords(clientID string, filter models.ThreadPoolFilter, start, end time.Time) (*models.PageResult[models.ThreadPoolStats], error) {
	filter.Normalize()

	prefix := poolRecordPrefix
	if clientID != "" {
		prefix = poolRecordPrefix + clientID + ":"
	}

	var matched []models.ThreadPoolStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()

			ts := time.Unix(0, extractTimestampFromKey(item.Key()))
			if !start.IsZero() && ts.Before(start) {
				continue
			}
			if !end.IsZero() && ts.After(end) {
				continue
			}

			err := item.Value(func(val []byte) error {
				var record models.ThreadPoolStats
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if !matchPoolFilter(&record, &filter) {
					return nil
				}
				matched = append(matched, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("查询线程池记录失败", zap.Error(err))
		return nil, fmt.Errorf("查询线程池记录失败: %w", err)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdateTime.After(matched[j].UpdateTime)
	})

	return paginate(matched, filter.Page, filter.PageSize), nil
}

// matchPoolFilter 判断记录是否命中过滤条件，未设置的字段不参与过滤
func matchPoolFilter(record *models.ThreadPoolStats, filter *models.ThreadPoolFilter) bool {
	if filter.PoolName != "" && !utils.ContainsIgnoreCase(record.PoolName, filter.PoolName) {
		return false
	}
	if filter.QueueType != "" && record.QueueType != filter.QueueType {
		return false
	}
	if filter.Dynamic != nil && record.Dynamic != *filter.Dynamic {
		return false
	}
	return true
}

// paginate 1起始页码分页
func paginate(records []models.ThreadPoolStats, page, size int) *models.PageResult[models.ThreadPoolStats] {
	total := int64(len(records))
	start, ok := models.PageWindow(total, page, size)
	if !ok {
		result := models.EmptyPage[models.ThreadPoolStats](page, size)
		result.Total = total
		return result
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return &models.PageResult[models.ThreadPoolStats]{
		Records: records[start:end],
		Total:   total,
		Current: page,
		Size:    size,
	}
}

// extractTimestampFromKey 从键的末段提取纳秒时间戳
func extractTimestampFromKey(key []byte) int64 {
	parts := strings.Split(string(key), ":")
	if len(parts) == 0 {
		return 0
	}
	ts, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// runRetentionCleaner 运行数据保留清理任务
func (s *Storage) runRetentionCleaner() {
	defer s.wg.Done()

	if s.config.RetentionDays <= 0 {
		return
	}

	// 每天执行一次清理，启动时立即执行一次
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	s.cleanStaleRecords()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanStaleRecords()
		}
	}
}

// cleanStaleRecords 删除超出保留期的记录
func (s *Storage) cleanStaleRecords() {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays).UnixNano()

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(poolRecordPrefix)); it.ValidForPrefix([]byte(poolRecordPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if extractTimestampFromKey(key) < cutoff {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("扫描过期记录失败", zap.Error(err))
		return
	}

	if len(stale) == 0 {
		return
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("删除过期记录失败", zap.Error(err))
		return
	}

	s.logger.Info("清理过期线程池记录", zap.Int("count", len(stale)))
}
