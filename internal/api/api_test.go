package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tpadmin/internal/models"
	"tpadmin/internal/server"
	"tpadmin/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestApp 组装一个不依赖外部存储的fiber应用
func newTestApp(t *testing.T) (*fiber.App, *server.AdminServer) {
	t.Helper()
	srv := server.New(server.Config{Logger: zap.NewNop()}, nil, nil)

	app := fiber.New()
	NewAPI(srv, zap.NewNop()).RegisterRoutes(app)
	return app, srv
}

// doRequest 执行请求并解析统一响应结构
func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, *utils.Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope utils.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp.StatusCode, &envelope
}

// registerAndReport 注册客户端并上报一个线程池
func registerAndReport(t *testing.T, app *fiber.App) {
	t.Helper()

	_, resp := doRequest(t, app, http.MethodPost, "/client/register", models.RegisterRequest{
		ClientID: "c1", ClientName: "订单服务", ClientIP: "10.0.0.1", ClientPort: 8080,
	})
	require.Equal(t, utils.StatusSuccess, resp.Code)

	_, resp = doRequest(t, app, http.MethodPost, "/client/heartbeat", models.HeartbeatRequest{
		ClientID: "c1",
		Pools: []models.RawThreadPoolStat{
			{PoolName: "order-pool", CorePoolSize: 4, MaximumPoolSize: 8, PoolSize: 4, ActiveCount: 3, TaskCount: 100, CompletedTaskCount: 90, QueueCapacity: 50, QueueSize: 10},
		},
	})
	require.Equal(t, utils.StatusSuccess, resp.Code)
}

// TestRegisterAndHeartbeat 测试注册与心跳的成功路径
func TestRegisterAndHeartbeat(t *testing.T) {
	app, srv := newTestApp(t)
	registerAndReport(t, app)

	assert.Equal(t, 1, srv.Registry().Count())
	assert.Equal(t, 1, srv.Snapshots().Size())
}

// TestRegisterMissingClientID 测试缺少clientId的注册被拒绝
func TestRegisterMissingClientID(t *testing.T) {
	app, _ := newTestApp(t)

	status, resp := doRequest(t, app, http.MethodPost, "/client/register", models.RegisterRequest{ClientName: "匿名"})
	assert.Equal(t, http.StatusOK, status, "业务错误也应返回HTTP 200")
	assert.Equal(t, utils.StatusBadRequest, resp.Code)
}

// TestHeartbeatUnknownClient 测试未注册客户端的心跳返回未找到
func TestHeartbeatUnknownClient(t *testing.T) {
	app, _ := newTestApp(t)

	_, resp := doRequest(t, app, http.MethodPost, "/client/heartbeat", models.HeartbeatRequest{ClientID: "ghost"})
	assert.Equal(t, utils.StatusNotFound, resp.Code)
}

// TestGetClients 测试客户端列表与计数接口
func TestGetClients(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodGet, "/clients", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	clients, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, clients, 1)

	_, resp = doRequest(t, app, http.MethodGet, "/mon_client/count", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	assert.Equal(t, float64(1), resp.Data)

	_, resp = doRequest(t, app, http.MethodGet, "/mon_client/list", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	ids, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"c1"}, ids)
}

// TestRemoveClient 测试注销接口清除客户端及其监控数据
func TestRemoveClient(t *testing.T) {
	app, srv := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodDelete, "/mon_client/c1", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	assert.Zero(t, srv.Registry().Count())
	assert.Zero(t, srv.Snapshots().Size())

	_, resp = doRequest(t, app, http.MethodDelete, "/mon_client/c1", nil)
	assert.Equal(t, utils.StatusNotFound, resp.Code, "重复注销应返回未找到")
}

// TestThreadPoolPage 测试线程池分页接口
func TestThreadPoolPage(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodGet, "/mon_thread_pool/page?page=1&pageSize=10", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)

	page, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), page["total"])
	records, ok := page["records"].([]interface{})
	require.True(t, ok)
	require.Len(t, records, 1)
	record := records[0].(map[string]interface{})
	assert.Equal(t, "order-pool", record["poolName"])
	assert.Equal(t, float64(40), record["queueRemainingCapacity"], "接口应返回派生字段")
}

// TestThreadPoolPageInvalidPaging 测试非法分页参数返回参数错误
func TestThreadPoolPageInvalidPaging(t *testing.T) {
	app, _ := newTestApp(t)

	_, resp := doRequest(t, app, http.MethodGet, "/mon_thread_pool/page?page=-1", nil)
	assert.Equal(t, utils.StatusBadRequest, resp.Code)

	_, resp = doRequest(t, app, http.MethodGet, "/mon_thread_pool/page?pageSize=501", nil)
	assert.Equal(t, utils.StatusBadRequest, resp.Code)
}

// TestThreadPoolStatistics 测试汇总统计接口
func TestThreadPoolStatistics(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodGet, "/thread_pool/client/c1/statistics", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)

	stats, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "系统汇总", stats["poolName"])
	assert.Equal(t, "System Summary", stats["poolAliasName"])
	assert.Equal(t, float64(1), stats["poolSize"], "汇总行的poolSize为池数量")
	assert.Equal(t, float64(100), stats["taskCount"])
}

// TestThreadPoolMetrics 测试实时指标接口
func TestThreadPoolMetrics(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodGet, "/thread_pool/client/c1/metrics", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	pools, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, pools, 1)
}

// TestThreadPoolDetail 测试按池名查询详情与未找到
func TestThreadPoolDetail(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	_, resp := doRequest(t, app, http.MethodGet, "/mon_thread_pool/detail/order-pool", nil)
	require.Equal(t, utils.StatusSuccess, resp.Code)
	detail, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c1", detail["clientId"])

	_, resp = doRequest(t, app, http.MethodGet, "/mon_thread_pool/detail/nope", nil)
	assert.Equal(t, utils.StatusNotFound, resp.Code)
}

// TestLoginHistoryUnavailable 测试未配置数据库时登录日志接口返回服务不可用
func TestLoginHistoryUnavailable(t *testing.T) {
	app, _ := newTestApp(t)

	_, resp := doRequest(t, app, http.MethodGet, "/mon_logs_login/page", nil)
	assert.Equal(t, utils.StatusServiceUnavailable, resp.Code)
}

// TestTimeRangeQueryUnavailable 测试未配置历史存储时时间范围查询返回服务不可用
func TestTimeRangeQueryUnavailable(t *testing.T) {
	app, _ := newTestApp(t)
	registerAndReport(t, app)

	start := time.Now().Add(-time.Hour).Format("2006-01-02 15:04:05")
	query := url.Values{"startTime": {start}}.Encode()
	_, resp := doRequest(t, app, http.MethodGet, "/mon_thread_pool/page?"+query, nil)
	assert.Equal(t, utils.StatusServiceUnavailable, resp.Code)
}
