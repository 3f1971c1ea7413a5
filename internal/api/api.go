// Package api 提供线程池监控的HTTP API接口
package api

import (
	"time"

	"tpadmin/internal/models"
	"tpadmin/internal/query"
	"tpadmin/internal/server"
	"tpadmin/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// API 监控核心的HTTP API
type API struct {
	server   *server.AdminServer
	query    *query.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAPI 创建新的监控API
func NewAPI(srv *server.AdminServer, logger *zap.Logger) *API {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &API{
		server:   srv,
		query:    srv.Query(),
		validate: validator.New(),
		logger:   logger,
	}
}

// RegisterRoutes 注册所有API路由
func (api *API) RegisterRoutes(router fiber.Router) {
	// 客户端列表与连接信息
	router.Get("/clients", api.getClients)
	router.Get("/mon_client/count", api.getClientCount)
	router.Get("/mon_client/list", api.getClientList)
	router.Get("/mon_client/info", api.getClientInfo)
	router.Delete("/mon_client/:clientId", api.removeClient)

	// 客户端上报入口
	router.Post("/client/register", api.registerClient)
	router.Post("/client/heartbeat", api.heartbeat)

	// 单客户端线程池视图
	clientGroup := router.Group("/thread_pool/client/:clientId")
	clientGroup.Get("/page", api.getThreadPoolPage)
	clientGroup.Get("/statistics", api.getThreadPoolStatistics)
	clientGroup.Get("/metrics", api.getThreadPoolMetrics)

	// 全局线程池视图
	router.Get("/mon_thread_pool/page", api.getThreadPoolPage)
	router.Get("/mon_thread_pool/statistics", api.getThreadPoolStatistics)
	router.Get("/mon_thread_pool/metrics", api.getThreadPoolMetrics)
	router.Get("/mon_thread_pool/detail/:poolName", api.getThreadPoolDetail)

	// 登录日志
	router.Get("/mon_logs_login/page", api.getLoginHistoryPage)

	api.logger.Info("监控API路由已注册")
}

// getClients 获取客户端列表
func (api *API) getClients(c *fiber.Ctx) error {
	var filter models.ClientFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "查询参数不合法")
	}
	return utils.SuccessResponse(c, api.query.ListClients(filter))
}

// getClientCount 获取已注册客户端数量
func (api *API) getClientCount(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, api.query.ClientCount())
}

// getClientList 获取在线客户端ID列表
func (api *API) getClientList(c *fiber.Ctx) error {
	clients := api.query.ListClients(models.ClientFilter{Status: models.ClientStatusOnline})
	ids := make([]string, 0, len(clients))
	for _, client := range clients {
		ids = append(ids, client.ClientID)
	}
	return utils.SuccessResponse(c, ids)
}

// getClientInfo 获取客户端连接详细信息
func (api *API) getClientInfo(c *fiber.Ctx) error {
	online := api.query.ListClients(models.ClientFilter{Status: models.ClientStatusOnline})
	ids := make([]string, 0, len(online))
	for _, client := range online {
		ids = append(ids, client.ClientID)
	}
	return utils.SuccessResponse(c, fiber.Map{
		"clientCount":      api.query.ClientCount(),
		"connectedClients": ids,
		"timestamp":        time.Now().UnixMilli(),
	})
}

// removeClient 注销客户端并清除其监控数据
func (api *API) removeClient(c *fiber.Ctx) error {
	if err := api.server.RemoveClient(c.Params("clientId")); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, nil)
}

// registerClient 处理客户端注册
func (api *API) registerClient(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "请求体不合法")
	}
	if err := api.validate.Struct(&req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "clientId不能为空")
	}

	clientID := api.server.Register(req, time.Now())
	return utils.SuccessResponse(c, clientID)
}

// heartbeat 处理客户端心跳与携带的线程池上报
func (api *API) heartbeat(c *fiber.Ctx) error {
	var req models.HeartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "请求体不合法")
	}
	if err := api.validate.Struct(&req); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "clientId不能为空")
	}

	if err := api.server.Heartbeat(&req, time.Now()); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, nil)
}

// getThreadPoolPage 线程池分页查询，携带时间范围时检索历史记录
func (api *API) getThreadPoolPage(c *fiber.Ctx) error {
	filter, err := api.parseThreadPoolFilter(c)
	if err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "查询参数不合法")
	}

	clientID := c.Params("clientId")
	start := parseTimeParam(c.Query("startTime"))
	end := parseEndTimeParam(c.Query("endTime"))

	var page *models.PageResult[models.ThreadPoolStats]
	if !start.IsZero() || !end.IsZero() {
		page, err = api.query.SearchPoolHistory(clientID, filter, start, end)
	} else {
		page, err = api.query.SearchPools(clientID, filter)
	}
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, page)
}

// getThreadPoolStatistics 线程池汇总统计
func (api *API) getThreadPoolStatistics(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, api.query.Statistics(c.Params("clientId")))
}

// getThreadPoolMetrics 线程池实时指标
func (api *API) getThreadPoolMetrics(c *fiber.Ctx) error {
	return utils.SuccessResponse(c, api.query.Metrics(c.Params("clientId")))
}

// getThreadPoolDetail 按池名查询线程池详情
func (api *API) getThreadPoolDetail(c *fiber.Ctx) error {
	stats, err := api.query.Detail(c.Params("poolName"))
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, stats)
}

// getLoginHistoryPage 登录日志分页查询
func (api *API) getLoginHistoryPage(c *fiber.Ctx) error {
	var filter models.LoginHistoryFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "查询参数不合法")
	}
	if err := api.validate.Struct(&filter); err != nil {
		return utils.FailResponse(c, utils.StatusBadRequest, "分页参数不合法")
	}
	filter.StartTime = parseTimeParam(c.Query("startTime"))
	filter.EndTime = parseEndTimeParam(c.Query("endTime"))

	page, err := api.query.SearchLoginHistory(c.Context(), filter)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return utils.SuccessResponse(c, page)
}

// parseThreadPoolFilter 解析线程池过滤条件并校验分页参数
func (api *API) parseThreadPoolFilter(c *fiber.Ctx) (models.ThreadPoolFilter, error) {
	var filter models.ThreadPoolFilter
	if err := c.QueryParser(&filter); err != nil {
		return filter, err
	}
	if err := api.validate.Struct(&filter); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTimeParam 解析时间参数，支持RFC3339与常用的日期时间格式
func parseTimeParam(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	layouts := []string{
		utils.RFC3339Format,
		utils.DateTimeFormat,
		utils.DateFormat,
	}
	for _, layout := range layouts {
		if t, err := utils.ParseTimeInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseEndTimeParam 解析范围末端的时间参数，纯日期扩展到当天结束
func parseEndTimeParam(value string) time.Time {
	t := parseTimeParam(value)
	if !t.IsZero() && len(value) == len(utils.DateFormat) {
		return utils.EndOfDay(t)
	}
	return t
}
