package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"tpadmin/internal/models"
	"tpadmin/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPutReplacesWholeSnapshot 测试写入按键整体替换而不做字段合并
func TestPutReplacesWholeSnapshot(t *testing.T) {
	store := NewStore()

	store.Put(&models.ThreadPoolStats{
		ClientID: "c1", PoolName: "p1",
		ActiveCount: 5, QueueType: "ArrayBlockingQueue",
	})
	store.Put(&models.ThreadPoolStats{
		ClientID: "c1", PoolName: "p1",
		ActiveCount: 2,
	})

	got, err := store.Get("c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ActiveCount, "新快照应覆盖旧值")
	assert.Empty(t, got.QueueType, "旧快照的字段不应残留")
	assert.Equal(t, 1, store.Size(), "同键重复写入不应增加数量")
}

// TestGetReturnsCopy 测试读取返回副本，调用方修改不影响存储
func TestGetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "p1", ActiveCount: 3})

	got, err := store.Get("c1", "p1")
	require.NoError(t, err)
	got.ActiveCount = 99

	again, err := store.Get("c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, again.ActiveCount, "外部修改不应污染存储内的快照")
}

// TestGetAllScoping 测试按客户端过滤与全局聚合
func TestGetAllScoping(t *testing.T) {
	store := NewStore()
	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "p1"})
	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "p2"})
	store.Put(&models.ThreadPoolStats{ClientID: "c2", PoolName: "p1"})

	assert.Len(t, store.GetAll("c1"), 2, "c1应有两个线程池")
	assert.Len(t, store.GetAll(""), 3, "空clientID应跨客户端聚合")
	assert.Empty(t, store.GetAll("c3"), "未知客户端应返回空列表")
}

// TestDetailPrefersLatest 测试同名池取最近更新的那个
func TestDetailPrefersLatest(t *testing.T) {
	store := NewStore()
	base := time.Now()

	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "shared", ActiveCount: 1, UpdateTime: base})
	store.Put(&models.ThreadPoolStats{ClientID: "c2", PoolName: "shared", ActiveCount: 2, UpdateTime: base.Add(time.Second)})

	got, err := store.Detail("shared")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ClientID, "应返回更新时间更近的客户端")
	assert.Equal(t, 2, got.ActiveCount)
}

// TestNotFound 测试缺失键返回未找到错误
func TestNotFound(t *testing.T) {
	store := NewStore()

	_, err := store.Get("c1", "nope")
	assert.True(t, common.IsNotFound(err), "Get缺失键应返回NotFound")

	_, err = store.Detail("nope")
	assert.True(t, common.IsNotFound(err), "Detail缺失池名应返回NotFound")
}

// TestRemoveClient 测试删除客户端的全部快照
func TestRemoveClient(t *testing.T) {
	store := NewStore()
	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "p1"})
	store.Put(&models.ThreadPoolStats{ClientID: "c1", PoolName: "p2"})
	store.Put(&models.ThreadPoolStats{ClientID: "c2", PoolName: "p1"})

	removed := store.RemoveClient("c1")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, store.Size())
	assert.Empty(t, store.GetAll("c1"))
}

// TestConcurrentPut 测试不同键的并发写入互不阻塞且全部可见
func TestConcurrentPut(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Put(&models.ThreadPoolStats{
				ClientID: fmt.Sprintf("c%d", i%5),
				PoolName: fmt.Sprintf("p%d", i),
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Size(), "并发写入后应全部可见")
}
