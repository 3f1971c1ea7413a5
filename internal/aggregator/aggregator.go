// Package aggregator 将客户端上报的原始计数器转换为派生指标
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tpadmin/internal/models"
	"tpadmin/pkg/common"

	"go.uber.org/zap"
)

// Config 聚合器配置
type Config struct {
	// WindowSeconds tps计算窗口（秒），窗口越长越平滑，越短越灵敏
	WindowSeconds int
	// Logger 日志记录器
	Logger *zap.Logger
}

// DefaultWindowSeconds 默认tps计算窗口
const DefaultWindowSeconds = 60

// windowState 单个线程池的tps窗口状态
type windowState struct {
	mu            sync.Mutex
	baseCompleted int64
	baseAt        time.Time
	lastTPS       float64
	lastAt        time.Time
}

// Aggregator 指标聚合器，独占派生指标字段的计算
type Aggregator struct {
	window    time.Duration
	logger    *zap.Logger
	states    sync.Map // "clientID/poolName" -> *windowState
	malformed atomic.Int64
}

// New 创建聚合器
func New(cfg Config) *Aggregator {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = DefaultWindowSeconds
	}
	logger := cfg.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Aggregator{
		window: time.Duration(cfg.WindowSeconds) * time.Second,
		logger: logger,
	}
}

// Aggregate 由原始计数器派生完整快照。原始数据不合法时返回错误，
// 调用方保留上一份快照，采集路径不会因此失败。
func (a *Aggregator) Aggregate(clientID string, raw *models.RawThreadPoolStat, now time.Time) (*models.ThreadPoolStats, error) {
	if err := validate(raw); err != nil {
		a.malformed.Add(1)
		a.logger.Warn("丢弃不合法的线程池上报",
			zap.String("clientId", clientID),
			zap.String("poolName", raw.PoolName),
			zap.Error(err))
		return nil, common.NewInternalError("线程池上报数据不合法", err)
	}

	stats := &models.ThreadPoolStats{
		ClientID:          clientID,
		PoolName:          raw.PoolName,
		PoolAliasName:     raw.PoolAliasName,
		CorePoolSize:      raw.CorePoolSize,
		MaximumPoolSize:   raw.MaximumPoolSize,
		KeepAliveTime:     raw.KeepAliveTime,
		QueueType:         raw.QueueType,
		QueueCapacity:     raw.QueueCapacity,
		Fair:              raw.Fair,
		RejectHandlerName: raw.RejectHandlerName,
		Dynamic:           raw.Dynamic,

		QueueSize:          raw.QueueSize,
		ActiveCount:        raw.ActiveCount,
		TaskCount:          raw.TaskCount,
		CompletedTaskCount: raw.CompletedTaskCount,
		LargestPoolSize:    raw.LargestPoolSize,
		PoolSize:           raw.PoolSize,
		RejectCount:        raw.RejectCount,
		RunTimeoutCount:    raw.RunTimeoutCount,
		QueueTimeoutCount:  raw.QueueTimeoutCount,

		UpdateTime: now,
	}

	// 无界队列不套用容量公式，使用哨兵值
	if raw.QueueCapacity > 0 {
		remaining := raw.QueueCapacity - raw.QueueSize
		if remaining < 0 {
			remaining = 0
		}
		stats.QueueRemainingCapacity = remaining
	} else {
		stats.QueueRemainingCapacity = models.QueueUnboundedRemaining
	}

	stats.WaitTaskCount = raw.WaitTaskCount
	if stats.WaitTaskCount == 0 {
		stats.WaitTaskCount = int64(raw.QueueSize)
	}

	stats.TPS = a.computeTPS(clientID, raw.PoolName, raw.CompletedTaskCount, now)
	a.computeLatency(stats, raw.RtSamples)

	return stats, nil
}

// MalformedCount 返回被丢弃的不合法上报条数
func (a *Aggregator) MalformedCount() int64 {
	return a.malformed.Load()
}

// Forget 丢弃某客户端的全部窗口状态
func (a *Aggregator) Forget(clientID string) {
	prefix := clientID + "/"
	a.states.Range(func(k, v interface{}) bool {
		if key := k.(string); len(key) > len(prefix) && key[:len(prefix)] == prefix {
			a.states.Delete(k)
		}
		return true
	})
}

// computeTPS 按完成数增量除以窗口耗时计算tps。
// 基线至少间隔一个窗口才前移；同一时刻的重放返回上次结果，保证幂等。
func (a *Aggregator) computeTPS(clientID, poolName string, completed int64, now time.Time) float64 {
	k := clientID + "/" + poolName
	v, loaded := a.states.LoadOrStore(k, &windowState{
		baseCompleted: completed,
		baseAt:        now,
		lastAt:        now,
	})
	w := v.(*windowState)
	if !loaded {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !now.After(w.lastAt) {
		return w.lastTPS
	}

	var tps float64
	delta := completed - w.baseCompleted
	elapsed := now.Sub(w.baseAt)
	switch {
	case delta < 0:
		// 计数器回退（客户端重启），重置基线
		w.baseCompleted = completed
		w.baseAt = now
	case elapsed > 0:
		tps = float64(delta) / elapsed.Seconds()
	}

	if elapsed >= a.window {
		w.baseCompleted = completed
		w.baseAt = now
	}

	w.lastTPS = tps
	w.lastAt = now
	return tps
}

// computeLatency 由耗时采样计算min/avg/max与百分位阶梯。
// 窗口内没有采样时各字段为零值，不视为错误。
func (a *Aggregator) computeLatency(stats *models.ThreadPoolStats, samples []float64) {
	if len(samples) == 0 {
		return
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	stats.MinRt = sorted[0]
	stats.MaxRt = sorted[len(sorted)-1]
	stats.Avg = sum / float64(len(sorted))

	ladder := []struct {
		q    float64
		dest *float64
	}{
		{0.50, &stats.Tp50},
		{0.75, &stats.Tp75},
		{0.90, &stats.Tp90},
		{0.95, &stats.Tp95},
		{0.99, &stats.Tp99},
		{0.999, &stats.Tp999},
	}

	// 最近秩法取百分位，再做一次单调性校正，防止采样伪差破坏阶梯不变式
	prev := 0.0
	for _, step := range ladder {
		v := nearestRank(sorted, step.q)
		if v < prev {
			v = prev
		}
		*step.dest = v
		prev = v
	}
}

// nearestRank 在已排序的采样上取最近秩百分位
func nearestRank(sorted []float64, q float64) float64 {
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// validate 校验原始计数器的基本不变式
func validate(raw *models.RawThreadPoolStat) error {
	if raw.PoolName == "" {
		return fmt.Errorf("poolName为空")
	}
	if raw.TaskCount < 0 || raw.CompletedTaskCount < 0 || raw.RejectCount < 0 ||
		raw.RunTimeoutCount < 0 || raw.QueueTimeoutCount < 0 || raw.QueueSize < 0 {
		return fmt.Errorf("存在负数计数器")
	}
	if raw.CompletedTaskCount > raw.TaskCount {
		return fmt.Errorf("completedTaskCount(%d)大于taskCount(%d)", raw.CompletedTaskCount, raw.TaskCount)
	}
	if raw.CorePoolSize > raw.MaximumPoolSize {
		return fmt.Errorf("corePoolSize(%d)大于maximumPoolSize(%d)", raw.CorePoolSize, raw.MaximumPoolSize)
	}
	if raw.PoolSize > raw.MaximumPoolSize || raw.LargestPoolSize > raw.MaximumPoolSize {
		return fmt.Errorf("poolSize超出maximumPoolSize")
	}
	if raw.ActiveCount > raw.PoolSize {
		return fmt.Errorf("activeCount(%d)大于poolSize(%d)", raw.ActiveCount, raw.PoolSize)
	}
	for _, s := range raw.RtSamples {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("耗时采样不合法")
		}
	}
	return nil
}
