// Package models 定义线程池监控核心使用的数据模型
package models

import "time"

// ClientStatus 客户端在线状态
type ClientStatus string

const (
	// ClientStatusOnline 在线
	ClientStatusOnline ClientStatus = "online"
	// ClientStatusOffline 离线
	ClientStatusOffline ClientStatus = "offline"
)

// Client 表示一个已注册的远程客户端实例
type Client struct {
	ClientID        string       `json:"clientId"`
	ClientName      string       `json:"clientName"`
	ClientIP        string       `json:"clientIp"`
	ClientPort      int          `json:"clientPort"`
	Status          ClientStatus `json:"status"`
	LastHeartbeat   time.Time    `json:"lastHeartbeat"`
	RegisterTime    time.Time    `json:"registerTime"`
	ApplicationName string       `json:"applicationName,omitempty"`
	Environment     string       `json:"environment,omitempty"`
	Version         string       `json:"version,omitempty"`

	// 以下汇总字段由快照存储派生，不独立维护
	ThreadPoolCount    int   `json:"threadPoolCount"`
	ActiveThreadCount  int   `json:"activeThreadCount"`
	TotalTaskCount     int64 `json:"totalTaskCount"`
	CompletedTaskCount int64 `json:"completedTaskCount"`
}

// QueueUnboundedRemaining 无界队列的剩余容量哨兵值
const QueueUnboundedRemaining = -1

// ThreadPoolStats 线程池监控数据，分页、统计、实时指标与详情共用同一结构
type ThreadPoolStats struct {
	ClientID      string `json:"clientId"`
	PoolName      string `json:"poolName"`
	PoolAliasName string `json:"poolAliasName"`

	// 配置字段
	CorePoolSize      int    `json:"corePoolSize"`
	MaximumPoolSize   int    `json:"maximumPoolSize"`
	KeepAliveTime     int64  `json:"keepAliveTime"`
	QueueType         string `json:"queueType"`
	QueueCapacity     int    `json:"queueCapacity"`
	Fair              bool   `json:"fair"`
	RejectHandlerName string `json:"rejectHandlerName"`
	Dynamic           bool   `json:"dynamic"`

	// 运行时字段
	QueueSize              int   `json:"queueSize"`
	QueueRemainingCapacity int   `json:"queueRemainingCapacity"`
	ActiveCount            int   `json:"activeCount"`
	TaskCount              int64 `json:"taskCount"`
	CompletedTaskCount     int64 `json:"completedTaskCount"`
	LargestPoolSize        int   `json:"largestPoolSize"`
	PoolSize               int   `json:"poolSize"`
	WaitTaskCount          int64 `json:"waitTaskCount"`
	RejectCount            int64 `json:"rejectCount"`
	RunTimeoutCount        int64 `json:"runTimeoutCount"`
	QueueTimeoutCount      int64 `json:"queueTimeoutCount"`

	// 派生指标字段，由聚合器独占计算
	TPS   float64 `json:"tps"`
	MaxRt float64 `json:"maxRt"`
	MinRt float64 `json:"minRt"`
	Avg   float64 `json:"avg"`
	Tp50  float64 `json:"tp50"`
	Tp75  float64 `json:"tp75"`
	Tp90  float64 `json:"tp90"`
	Tp95  float64 `json:"tp95"`
	Tp99  float64 `json:"tp99"`
	Tp999 float64 `json:"tp999"`

	UpdateTime time.Time `json:"updateTime"`
}

// RawThreadPoolStat 客户端上报的原始线程池计数器
type RawThreadPoolStat struct {
	PoolName           string `json:"poolName" validate:"required"`
	PoolAliasName      string `json:"poolAliasName"`
	CorePoolSize       int    `json:"corePoolSize"`
	MaximumPoolSize    int    `json:"maximumPoolSize"`
	KeepAliveTime      int64  `json:"keepAliveTime"`
	QueueType          string `json:"queueType"`
	QueueCapacity      int    `json:"queueCapacity"`
	QueueSize          int    `json:"queueSize"`
	Fair               bool   `json:"fair"`
	ActiveCount        int    `json:"activeCount"`
	TaskCount          int64  `json:"taskCount"`
	CompletedTaskCount int64  `json:"completedTaskCount"`
	LargestPoolSize    int    `json:"largestPoolSize"`
	PoolSize           int    `json:"poolSize"`
	WaitTaskCount      int64  `json:"waitTaskCount"`
	RejectCount        int64  `json:"rejectCount"`
	RejectHandlerName  string `json:"rejectHandlerName"`
	Dynamic            bool   `json:"dynamic"`
	RunTimeoutCount    int64  `json:"runTimeoutCount"`
	QueueTimeoutCount  int64  `json:"queueTimeoutCount"`

	// RtSamples 窗口内的任务耗时采样（毫秒），用于计算百分位耗时
	RtSamples []float64 `json:"rtSamples,omitempty"`
}

// RegisterRequest 客户端注册请求
type RegisterRequest struct {
	ClientID        string `json:"clientId" validate:"required"`
	ClientName      string `json:"clientName"`
	ClientIP        string `json:"clientIp"`
	ClientPort      int    `json:"clientPort"`
	ApplicationName string `json:"applicationName"`
	Environment     string `json:"environment"`
	Version         string `json:"version"`
}

// HeartbeatRequest 客户端心跳请求，携带当前全部线程池的原始计数器
type HeartbeatRequest struct {
	ClientID string              `json:"clientId" validate:"required"`
	Pools    []RawThreadPoolStat `json:"pools"`
}

// PageResult 统一分页结果，records/total/current/size与前端约定一致
type PageResult[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Current int   `json:"current"`
	Size    int   `json:"size"`
}

// EmptyPage 返回一个指定页码与页大小的空分页结果
func EmptyPage[T any](current, size int) *PageResult[T] {
	return &PageResult[T]{
		Records: []T{},
		Total:   0,
		Current: current,
		Size:    size,
	}
}

// PageWindow 计算1起始页码的分页窗口起点。页码超出总页数时ok为false，
// 调用方返回携带真实total的空页。先用总页数做判定，起点乘法不会溢出。
func PageWindow(total int64, page, size int) (start int, ok bool) {
	pages := (total + int64(size) - 1) / int64(size)
	if int64(page) > pages {
		return 0, false
	}
	return (page - 1) * size, true
}

// ThreadPoolFilter 线程池分页查询过滤条件，零值字段不参与过滤
type ThreadPoolFilter struct {
	PoolName  string `json:"poolName" query:"poolName"`
	QueueType string `json:"queueType" query:"queueType"`
	Dynamic   *bool  `json:"dynamic" query:"dynamic"`
	Page      int    `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize  int    `json:"pageSize" query:"pageSize" validate:"omitempty,min=1,max=500"`
}

// LoginHistoryFilter 登录日志查询过滤条件，时间范围为闭区间
type LoginHistoryFilter struct {
	UserName     string    `json:"userName" query:"userName"`
	UserRealName string    `json:"userRealName" query:"userRealName"`
	IP           string    `json:"ip" query:"ip"`
	Status       string    `json:"status" query:"status"`
	StartTime    time.Time `json:"startTime" query:"-"`
	EndTime      time.Time `json:"endTime" query:"-"`
	Page         int       `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize     int       `json:"pageSize" query:"pageSize" validate:"omitempty,min=1,max=500"`
}

// Normalize 补全分页默认值
func (f *ThreadPoolFilter) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
}

// Normalize 补全分页默认值
func (f *LoginHistoryFilter) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 10
	}
}

// ClientFilter 客户端列表过滤条件
type ClientFilter struct {
	Status ClientStatus `json:"status" query:"status"`
}

// LoginHistory 登录日志，一次登录尝试写入一条，之后不再变更
type LoginHistory struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"userId" gorm:"size:36;index"`
	UserName     string    `json:"userName" gorm:"size:64;index"`
	UserRealName string    `json:"userRealName" gorm:"size:64"`
	IP           string    `json:"ip" gorm:"size:64"`
	IPAddr       string    `json:"ipAddr" gorm:"size:128"`
	UserAgent    string    `json:"userAgent" gorm:"size:255"`
	Status       string    `json:"status" gorm:"size:8;index"`
	Message      string    `json:"message" gorm:"size:255"`
	CreateTime   time.Time `json:"createTime" gorm:"index"`
}

// TableName 指定登录日志表名
func (LoginHistory) TableName() string {
	return "mon_logs_login"
}
