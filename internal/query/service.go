// Package query 提供对快照存储与历史存储的只读查询投影
package query

import (
	"context"
	"sort"
	"time"

	"tpadmin/internal/history"
	"tpadmin/internal/loginlog"
	"tpadmin/internal/models"
	"tpadmin/internal/registry"
	"tpadmin/internal/snapshot"
	"tpadmin/pkg/common"
	"tpadmin/pkg/utils"

	"go.uber.org/zap"
)

// 汇总行的固定名称，与前端展示约定一致
const (
	summaryPoolName  = "系统汇总"
	summaryAliasName = "System Summary"
)

// Service 查询服务，只读，不修改任何状态
type Service struct {
	registry  *registry.Registry
	snapshots *snapshot.Store
	history   *history.Storage
	loginLogs *loginlog.Store
	logger    *zap.Logger
}

// NewService 创建查询服务
func NewService(reg *registry.Registry, snapshots *snapshot.Store, hist *history.Storage, loginLogs *loginlog.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{
		registry:  reg,
		snapshots: snapshots,
		history:   hist,
		loginLogs: loginLogs,
		logger:    logger,
	}
}

// ListClients 列出客户端
func (s *Service) ListClients(filter models.ClientFilter) []models.Client {
	return s.registry.ListClients(filter)
}

// ClientCount 返回已注册客户端数量
func (s *Service) ClientCount() int {
	return s.registry.Count()
}

// SearchPools 对当前快照做过滤分页，clientID为空时为全局视图。
// 页码从1开始，超出总数的页返回空列表与正确的total。
func (s *Service) SearchPools(clientID string, filter models.ThreadPoolFilter) (*models.PageResult[models.ThreadPoolStats], error) {
	if err := checkPaging(filter.Page, filter.PageSize); err != nil {
		return nil, err
	}
	filter.Normalize()

	pools := s.sortedPools(clientID)

	matched := make([]models.ThreadPoolStats, 0, len(pools))
	for _, p := range pools {
		if !matchFilter(&p, &filter) {
			continue
		}
		matched = append(matched, p)
	}

	total := int64(len(matched))
	start, ok := models.PageWindow(total, filter.Page, filter.PageSize)
	if !ok {
		result := models.EmptyPage[models.ThreadPoolStats](filter.Page, filter.PageSize)
		result.Total = total
		return result, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &models.PageResult[models.ThreadPoolStats]{
		Records: matched[start:end],
		Total:   total,
		Current: filter.Page,
		Size:    filter.PageSize,
	}, nil
}

// SearchPoolHistory 按时间范围检索历史记录并分页
func (s *Service) SearchPoolHistory(clientID string, filter models.ThreadPoolFilter, start, end time.Time) (*models.PageResult[models.ThreadPoolStats], error) {
	if err := checkPaging(filter.Page, filter.PageSize); err != nil {
		return nil, err
	}
	if loginlog.InvertedTimeRange(start, end) {
		filter.Normalize()
		return models.EmptyPage[models.ThreadPoolStats](filter.Page, filter.PageSize), nil
	}
	if s.history == nil {
		return nil, common.NewUnavailableError("历史存储未配置", nil)
	}
	return s.history.QueryPoolRecords(clientID, filter, start, end)
}

// Statistics 返回一条汇总快照：池数量、活跃线程、任务与拒绝计数的合计
func (s *Service) Statistics(clientID string) *models.ThreadPoolStats {
	pools := s.snapshots.GetAll(clientID)

	stats := &models.ThreadPoolStats{
		ClientID:      clientID,
		PoolName:      summaryPoolName,
		PoolAliasName: summaryAliasName,
		PoolSize:      len(pools),
		UpdateTime:    time.Now(),
	}
	for _, p := range pools {
		stats.ActiveCount += p.ActiveCount
		stats.TaskCount += p.TaskCount
		stats.CompletedTaskCount += p.CompletedTaskCount
		stats.RejectCount += p.RejectCount
	}
	return stats
}

// Metrics 返回当前每个线程池的实时读数
func (s *Service) Metrics(clientID string) []models.ThreadPoolStats {
	return s.sortedPools(clientID)
}

// Detail 按池名做全局详情查找
func (s *Service) Detail(poolName string) (*models.ThreadPoolStats, error) {
	if poolName == "" {
		return nil, common.NewValidationError("poolName不能为空", nil)
	}
	return s.snapshots.Detail(poolName)
}

// SearchLoginHistory 分页检索登录日志
func (s *Service) SearchLoginHistory(ctx context.Context, filter models.LoginHistoryFilter) (*models.PageResult[models.LoginHistory], error) {
	if err := checkPaging(filter.Page, filter.PageSize); err != nil {
		return nil, err
	}
	if s.loginLogs == nil {
		return nil, common.NewUnavailableError("登录日志存储未配置", nil)
	}
	return s.loginLogs.Search(ctx, filter)
}

// sortedPools 取快照并按客户端ID与池名稳定排序，保证跨页遍历顺序一致
func (s *Service) sortedPools(clientID string) []models.ThreadPoolStats {
	pools := s.snapshots.GetAll(clientID)
	sort.Slice(pools, func(i, j int) bool {
		if pools[i].ClientID != pools[j].ClientID {
			return pools[i].ClientID < pools[j].ClientID
		}
		return pools[i].PoolName < pools[j].PoolName
	})
	return pools
}

// matchFilter 判断快照是否命中过滤条件，未设置的字段不参与过滤
func matchFilter(stats *models.ThreadPoolStats, filter *models.ThreadPoolFilter) bool {
	if filter.PoolName != "" && !utils.ContainsIgnoreCase(stats.PoolName, filter.PoolName) {
		return false
	}
	if filter.QueueType != "" && stats.QueueType != filter.QueueType {
		return false
	}
	if filter.Dynamic != nil && stats.Dynamic != *filter.Dynamic {
		return false
	}
	return true
}

// checkPaging 校验分页参数，0表示未设置
func checkPaging(page, size int) error {
	if page < 0 {
		return common.NewValidationError("page不能为负数", nil)
	}
	if size < 0 {
		return common.NewValidationError("pageSize不能为负数", nil)
	}
	if size > 500 {
		return common.NewValidationError("pageSize超出上限500", nil)
	}
	return nil
}
