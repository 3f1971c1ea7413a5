// Package registry 维护已注册客户端及其在线状态
package registry

import (
	"sort"
	"sync"
	"time"

	"tpadmin/internal/models"
	"tpadmin/pkg/common"

	"go.uber.org/zap"
)

// Rollup 客户端级别的汇总计数，由快照存储派生后回写
type Rollup struct {
	ThreadPoolCount    int
	ActiveThreadCount  int
	TotalTaskCount     int64
	CompletedTaskCount int64
}

// entry 单个客户端的登记项，持有自己的锁，心跳与清扫互不阻塞其他客户端
type entry struct {
	mu     sync.Mutex
	client models.Client
}

// Registry 客户端注册表
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
}

// New 创建客户端注册表
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register 幂等注册客户端，registerTime仅在首次注册时写入
func (r *Registry) Register(req models.RegisterRequest, now time.Time) string {
	r.mu.Lock()
	e, ok := r.entries[req.ClientID]
	if !ok {
		e = &entry{client: models.Client{
			ClientID:     req.ClientID,
			RegisterTime: now,
		}}
		r.entries[req.ClientID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.client.ClientName = req.ClientName
	e.client.ClientIP = req.ClientIP
	e.client.ClientPort = req.ClientPort
	e.client.ApplicationName = req.ApplicationName
	e.client.Environment = req.Environment
	e.client.Version = req.Version
	e.client.Status = models.ClientStatusOnline
	if now.After(e.client.LastHeartbeat) {
		e.client.LastHeartbeat = now
	}

	if !ok {
		r.logger.Info("客户端注册",
			zap.String("clientId", req.ClientID),
			zap.String("clientIp", req.ClientIP),
			zap.Int("clientPort", req.ClientPort))
	}
	return req.ClientID
}

// Heartbeat 更新客户端心跳时间并置为在线，未注册的客户端返回未找到错误
func (r *Registry) Heartbeat(clientID string, at time.Time) error {
	e := r.lookup(clientID)
	if e == nil {
		return common.NewNotFoundError("客户端未注册: "+clientID, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// 按时间戳取最新值，迟到的心跳不会回拨
	if at.After(e.client.LastHeartbeat) {
		e.client.LastHeartbeat = at
	}
	e.client.Status = models.ClientStatusOnline
	return nil
}

// SetRollups 回写由快照存储派生的汇总计数
func (r *Registry) SetRollups(clientID string, rollup Rollup) error {
	e := r.lookup(clientID)
	if e == nil {
		return common.NewNotFoundError("客户端未注册: "+clientID, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.client.ThreadPoolCount = rollup.ThreadPoolCount
	e.client.ActiveThreadCount = rollup.ActiveThreadCount
	e.client.TotalTaskCount = rollup.TotalTaskCount
	e.client.CompletedTaskCount = rollup.CompletedTaskCount
	return nil
}

// Remove 删除客户端登记项，未注册的客户端返回未找到错误
func (r *Registry) Remove(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[clientID]; !ok {
		return common.NewNotFoundError("客户端未注册: "+clientID, nil)
	}
	delete(r.entries, clientID)
	r.logger.Info("客户端已注销", zap.String("clientId", clientID))
	return nil
}

// Get 查询单个客户端
func (r *Registry) Get(clientID string) (models.Client, error) {
	e := r.lookup(clientID)
	if e == nil {
		return models.Client{}, common.NewNotFoundError("客户端未注册: "+clientID, nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client, nil
}

// ListClients 列出客户端，支持按状态过滤，按注册时间与ID稳定排序
func (r *Registry) ListClients(filter models.ClientFilter) []models.Client {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	clients := make([]models.Client, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		c := e.client
		e.mu.Unlock()
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		clients = append(clients, c)
	}

	sort.Slice(clients, func(i, j int) bool {
		if !clients[i].RegisterTime.Equal(clients[j].RegisterTime) {
			return clients[i].RegisterTime.Before(clients[j].RegisterTime)
		}
		return clients[i].ClientID < clients[j].ClientID
	})
	return clients
}

// Count 返回已注册客户端数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SweepStale 将心跳超时的客户端置为离线，返回本次转换的数量。
// 逐客户端短暂加锁，不阻塞其他客户端的心跳；同一客户端上并发到达的心跳
// 先更新lastHeartbeat即可免于被本轮清扫命中。
func (r *Registry) SweepStale(now time.Time, timeout time.Duration) int {
	cutoff := now.Add(-timeout)

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	swept := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.client.Status == models.ClientStatusOnline && e.client.LastHeartbeat.Before(cutoff) {
			e.client.Status = models.ClientStatusOffline
			swept++
			r.logger.Warn("客户端心跳超时，标记为离线",
				zap.String("clientId", e.client.ClientID),
				zap.Time("lastHeartbeat", e.client.LastHeartbeat))
		}
		e.mu.Unlock()
	}
	return swept
}

// lookup 按ID查找登记项
func (r *Registry) lookup(clientID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[clientID]
}
