// Package snapshot 保存每个(客户端,线程池)的最新运行时快照
package snapshot

import (
	"sync"

	"tpadmin/internal/models"
	"tpadmin/pkg/common"
)

// key 快照的复合键
type key struct {
	clientID string
	poolName string
}

// Store 最新值表。快照以不可变值整体替换，不做字段级合并，
// 不同键之间的写入互不阻塞，读取可与写入并发。
type Store struct {
	snapshots sync.Map // key -> *models.ThreadPoolStats
}

// NewStore 创建快照存储
func NewStore() *Store {
	return &Store{}
}

// Put 按键整体替换快照，旧快照的全部字段被丢弃
func (s *Store) Put(stats *models.ThreadPoolStats) {
	cp := *stats
	s.snapshots.Store(key{clientID: cp.ClientID, poolName: cp.PoolName}, &cp)
}

// Get 查询单个快照
func (s *Store) Get(clientID, poolName string) (*models.ThreadPoolStats, error) {
	v, ok := s.snapshots.Load(key{clientID: clientID, poolName: poolName})
	if !ok {
		return nil, common.NewNotFoundError("线程池快照不存在: "+poolName, nil)
	}
	cp := *v.(*models.ThreadPoolStats)
	return &cp, nil
}

// GetAll 返回快照列表，clientID为空时跨全部客户端聚合。
// 遍历期间允许并发写入，结果可能混合略有先后的更新时间。
func (s *Store) GetAll(clientID string) []models.ThreadPoolStats {
	result := make([]models.ThreadPoolStats, 0)
	s.snapshots.Range(func(k, v interface{}) bool {
		if clientID != "" && k.(key).clientID != clientID {
			return true
		}
		result = append(result, *v.(*models.ThreadPoolStats))
		return true
	})
	return result
}

// Detail 按池名做全局查找。同名池出现在多个客户端时返回最近更新的那个。
func (s *Store) Detail(poolName string) (*models.ThreadPoolStats, error) {
	var latest *models.ThreadPoolStats
	s.snapshots.Range(func(k, v interface{}) bool {
		if k.(key).poolName != poolName {
			return true
		}
		stats := v.(*models.ThreadPoolStats)
		if latest == nil || stats.UpdateTime.After(latest.UpdateTime) {
			latest = stats
		}
		return true
	})
	if latest == nil {
		return nil, common.NewNotFoundError("线程池快照不存在: "+poolName, nil)
	}
	cp := *latest
	return &cp, nil
}

// RemoveClient 删除指定客户端的全部快照
func (s *Store) RemoveClient(clientID string) int {
	removed := 0
	s.snapshots.Range(func(k, v interface{}) bool {
		if k.(key).clientID == clientID {
			s.snapshots.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Size 返回当前快照数量
func (s *Store) Size() int {
	n := 0
	s.snapshots.Range(func(k, v interface{}) bool {
		n++
		return true
	})
	return n
}
