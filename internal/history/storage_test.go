package history

import (
	"fmt"
	"testing"
	"time"

	"tpadmin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := New(Config{InMemory: true, Logger: zap.NewNop()})
	require.NoError(t, err, "创建内存存储不应失败")
	t.Cleanup(func() {
		_ = storage.Stop()
	})
	return storage
}

// seedRecords 写入n条间隔一秒的记录，返回首条记录时间
func seedRecords(t *testing.T, storage *Storage, clientID, poolName string, n int) time.Time {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Second)
	for i := 0; i < n; i++ {
		err := storage.StorePoolRecord(&models.ThreadPoolStats{
			ClientID:   clientID,
			PoolName:   poolName,
			TaskCount:  int64(i),
			UpdateTime: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	return base
}

// TestStoreAndQueryRoundTrip 测试写入后可按客户端检索
func TestStoreAndQueryRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	seedRecords(t, storage, "c1", "order-pool", 3)
	seedRecords(t, storage, "c2", "pay-pool", 2)

	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "c1应有三条记录")
	for _, r := range page.Records {
		assert.Equal(t, "c1", r.ClientID)
		assert.Equal(t, "order-pool", r.PoolName)
	}

	all, err := storage.QueryPoolRecords("", models.ThreadPoolFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), all.Total, "空clientID应检索全部客户端")
}

// TestQueryOrderedByTimeDesc 测试结果按记录时间倒序
func TestQueryOrderedByTimeDesc(t *testing.T) {
	storage := newTestStorage(t)
	seedRecords(t, storage, "c1", "order-pool", 5)

	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, page.Records, 5)
	for i := 1; i < len(page.Records); i++ {
		assert.False(t, page.Records[i-1].UpdateTime.Before(page.Records[i].UpdateTime), "记录应按时间倒序")
	}
	assert.Equal(t, int64(4), page.Records[0].TaskCount, "最新一条应排在最前")
}

// TestQueryTimeRange 测试闭区间时间过滤
func TestQueryTimeRange(t *testing.T) {
	storage := newTestStorage(t)
	base := seedRecords(t, storage, "c1", "order-pool", 10)

	start := base.Add(2 * time.Second)
	end := base.Add(5 * time.Second)
	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{}, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total, "闭区间[2s,5s]应命中4条")
}

// TestQueryPoolNameFilter 测试池名子串过滤
func TestQueryPoolNameFilter(t *testing.T) {
	storage := newTestStorage(t)
	seedRecords(t, storage, "c1", "order-pool", 2)
	seedRecords(t, storage, "c1", "pay-pool", 3)

	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{PoolName: "pay"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "子串pay应只命中pay-pool")
}

// TestQueryDynamicFilter 测试三态动态池过滤
func TestQueryDynamicFilter(t *testing.T) {
	storage := newTestStorage(t)
	now := time.Now()
	require.NoError(t, storage.StorePoolRecord(&models.ThreadPoolStats{
		ClientID: "c1", PoolName: "dyn-pool", Dynamic: true, UpdateTime: now,
	}))
	require.NoError(t, storage.StorePoolRecord(&models.ThreadPoolStats{
		ClientID: "c1", PoolName: "fix-pool", Dynamic: false, UpdateTime: now.Add(time.Millisecond),
	}))

	dynamic := true
	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{Dynamic: &dynamic}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "dyn-pool", page.Records[0].PoolName)

	// 未设置时不过滤
	page, err = storage.QueryPoolRecords("c1", models.ThreadPoolFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

// TestQueryPagination 测试1起始分页与超页行为
func TestQueryPagination(t *testing.T) {
	storage := newTestStorage(t)
	seedRecords(t, storage, "c1", "order-pool", 25)

	page2, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{Page: 2, PageSize: 10}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(25), page2.Total)
	assert.Len(t, page2.Records, 10)
	assert.Equal(t, 2, page2.Current)

	page3, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{Page: 3, PageSize: 10}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, page3.Records, 5, "末页应为剩余5条")

	page10, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{Page: 10, PageSize: 10}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, page10.Records, "超页应返回空列表")
	assert.Equal(t, int64(25), page10.Total, "超页仍应返回正确的total")

	huge, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{Page: 1 << 60, PageSize: 16}, time.Time{}, time.Time{})
	require.NoError(t, err, "极大页码不应越界")
	assert.Empty(t, huge.Records)
	assert.Equal(t, int64(25), huge.Total)
}

// TestAppendOnlySameSecond 测试同一池多次采集互不覆盖
func TestAppendOnlySameSecond(t *testing.T) {
	storage := newTestStorage(t)
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, storage.StorePoolRecord(&models.ThreadPoolStats{
			ClientID:   "c1",
			PoolName:   "order-pool",
			UpdateTime: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	page, err := storage.QueryPoolRecords("c1", models.ThreadPoolFilter{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "追加式存储不应互相覆盖")
}

// TestExtractTimestampFromKey 测试从键末段提取时间戳
func TestExtractTimestampFromKey(t *testing.T) {
	ts := time.Now().UnixNano()
	key := fmt.Sprintf("pool:c1:order-pool:%d", ts)
	assert.Equal(t, ts, extractTimestampFromKey([]byte(key)))
	assert.Zero(t, extractTimestampFromKey([]byte("pool:c1:broken:notanumber")))
}
