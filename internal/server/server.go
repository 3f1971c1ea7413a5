// Package server 实现线程池监控的采集编排：注册、心跳、指标聚合与周期清扫
package server

import (
	"context"
	"fmt"
	"time"

	"tpadmin/internal/aggregator"
	"tpadmin/internal/history"
	"tpadmin/internal/loginlog"
	"tpadmin/internal/models"
	"tpadmin/internal/query"
	"tpadmin/internal/registry"
	"tpadmin/internal/snapshot"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config 定义采集服务的配置选项
type Config struct {
	// HeartbeatTimeout 心跳超时，超过该时长未收到心跳的客户端被置为离线
	HeartbeatTimeout time.Duration
	// SweepInterval 离线清扫周期
	SweepInterval time.Duration
	// WindowSeconds tps计算窗口（秒）
	WindowSeconds int
	// Logger 日志记录器
	Logger *zap.Logger
}

// AdminServer 采集服务，聚合注册表、聚合器、快照存储与历史存储
type AdminServer struct {
	config Config
	logger *zap.Logger

	registry   *registry.Registry
	aggregator *aggregator.Aggregator
	snapshots  *snapshot.Store
	history    *history.Storage
	loginLogs  *loginlog.Store
	query      *query.Service

	cron *cron.Cron
}

// New 创建采集服务。历史存储与登录日志存储依赖外部资源，由调用方注入。
func New(cfg Config, hist *history.Storage, loginLogs *loginlog.Store) *AdminServer {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	reg := registry.New(logger.Named("registry"))
	agg := aggregator.New(aggregator.Config{
		WindowSeconds: cfg.WindowSeconds,
		Logger:        logger.Named("aggregator"),
	})
	snapshots := snapshot.NewStore()

	return &AdminServer{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		aggregator: agg,
		snapshots:  snapshots,
		history:    hist,
		loginLogs:  loginLogs,
		query:      query.NewService(reg, snapshots, hist, loginLogs, logger.Named("query")),
		cron:       cron.New(),
	}
}

// Start 启动采集服务与周期清扫任务
func (s *AdminServer) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.config.SweepInterval)
	if _, err := s.cron.AddFunc(spec, s.sweepOnce); err != nil {
		return fmt.Errorf("注册离线清扫任务失败: %w", err)
	}
	s.cron.Start()

	s.logger.Info("采集服务已启动",
		zap.Duration("heartbeatTimeout", s.config.HeartbeatTimeout),
		zap.Duration("sweepInterval", s.config.SweepInterval))
	return nil
}

// Stop 停止采集服务
func (s *AdminServer) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("采集服务已停止")
	return nil
}

// Registry 返回客户端注册表
func (s *AdminServer) Registry() *registry.Registry {
	return s.registry
}

// Query 返回查询服务
func (s *AdminServer) Query() *query.Service {
	return s.query
}

// Snapshots 返回快照存储
func (s *AdminServer) Snapshots() *snapshot.Store {
	return s.snapshots
}

// Register 处理客户端注册
func (s *AdminServer) Register(req models.RegisterRequest, now time.Time) string {
	return s.registry.Register(req, now)
}

// Heartbeat 处理客户端心跳并采集其携带的线程池计数器。
// 单条上报不合法只影响该线程池（保留上一份快照），不使心跳失败。
func (s *AdminServer) Heartbeat(req *models.HeartbeatRequest, now time.Time) error {
	if err := s.registry.Heartbeat(req.ClientID, now); err != nil {
		return err
	}
	s.Ingest(req.ClientID, req.Pools, now)
	return nil
}

// RemoveClient 注销客户端并清除其全部快照与聚合窗口状态
func (s *AdminServer) RemoveClient(clientID string) error {
	if err := s.registry.Remove(clientID); err != nil {
		return err
	}
	removed := s.snapshots.RemoveClient(clientID)
	s.aggregator.Forget(clientID)
	s.logger.Info("客户端监控数据已清除",
		zap.String("clientId", clientID),
		zap.Int("removedSnapshots", removed))
	return nil
}

// OnlineClients 返回当前在线的客户端，供拉取采集使用
func (s *AdminServer) OnlineClients() []models.Client {
	return s.registry.ListClients(models.ClientFilter{Status: models.ClientStatusOnline})
}

// Touch 将一次成功的拉取记为客户端心跳
func (s *AdminServer) Touch(clientID string, at time.Time) {
	if err := s.registry.Heartbeat(clientID, at); err != nil {
		s.logger.Debug("更新客户端心跳失败", zap.String("clientId", clientID), zap.Error(err))
	}
}

// Ingest 聚合并落库一批原始线程池计数器，之后由快照重新派生客户端汇总
func (s *AdminServer) Ingest(clientID string, pools []models.RawThreadPoolStat, now time.Time) {
	for i := range pools {
		stats, err := s.aggregator.Aggregate(clientID, &pools[i], now)
		if err != nil {
			// 聚合失败已在聚合器内记录诊断，保留上一份快照
			continue
		}
		s.snapshots.Put(stats)
		if s.history != nil {
			if err := s.history.StorePoolRecord(stats); err != nil {
				s.logger.Warn("写入线程池历史记录失败",
					zap.String("clientId", clientID),
					zap.String("poolName", stats.PoolName),
					zap.Error(err))
			}
		}
	}

	s.refreshRollups(clientID)
}

// refreshRollups 从快照存储重新派生客户端汇总计数，避免独立可变状态漂移
func (s *AdminServer) refreshRollups(clientID string) {
	pools := s.snapshots.GetAll(clientID)

	rollup := registry.Rollup{ThreadPoolCount: len(pools)}
	for _, p := range pools {
		rollup.ActiveThreadCount += p.ActiveCount
		rollup.TotalTaskCount += p.TaskCount
		rollup.CompletedTaskCount += p.CompletedTaskCount
	}

	if err := s.registry.SetRollups(clientID, rollup); err != nil {
		s.logger.Debug("回写客户端汇总失败", zap.String("clientId", clientID), zap.Error(err))
	}
}

// sweepOnce 执行一轮离线清扫
func (s *AdminServer) sweepOnce() {
	swept := s.registry.SweepStale(time.Now(), s.config.HeartbeatTimeout)
	if swept > 0 {
		s.logger.Info("离线清扫完成", zap.Int("swept", swept))
	}
}
