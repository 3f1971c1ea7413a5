// Package poller 实现对客户端的拉取式采集
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tpadmin/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink 拉取结果的接收方
type Sink interface {
	// OnlineClients 返回需要轮询的在线客户端
	OnlineClients() []models.Client
	// Ingest 采集一批原始线程池计数器
	Ingest(clientID string, pools []models.RawThreadPoolStat, now time.Time)
	// Touch 将一次成功的拉取记为客户端心跳
	Touch(clientID string, at time.Time)
}

// Config 定义轮询器的配置选项
type Config struct {
	// Interval 轮询周期
	Interval time.Duration
	// Timeout 单次请求超时，超时视为一次丢失的心跳
	Timeout time.Duration
	// StatsPath 客户端暴露统计数据的HTTP路径
	StatsPath string
	// Logger 日志记录器
	Logger *zap.Logger
}

// Poller 周期性轮询每个在线客户端的统计接口。
// 每个客户端独立请求并限时，单个客户端不可达不会拖住其他客户端。
type Poller struct {
	config Config
	sink   Sink
	client *fasthttp.Client
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建轮询器
func New(cfg Config, sink Sink) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.StatsPath == "" {
		cfg.StatsPath = "/dtp/stats"
	}
	logger := cfg.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		config: cfg,
		sink:   sink,
		client: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动轮询循环
func (p *Poller) Start() error {
	p.wg.Add(1)
	go p.run()
	p.logger.Info("轮询采集已启动",
		zap.Duration("interval", p.config.Interval),
		zap.Duration("timeout", p.config.Timeout))
	return nil
}

// Stop 停止轮询循环
func (p *Poller) Stop() error {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("轮询采集已停止")
	return nil
}

// run 主循环
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll 并发轮询全部在线客户端，逐个等待完成
func (p *Poller) pollAll() {
	clients := p.sink.OnlineClients()
	if len(clients) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c models.Client) {
			defer wg.Done()
			p.pollOne(c)
		}(c)
	}
	wg.Wait()
}

// pollOne 轮询单个客户端。失败只记录为一次丢失的心跳，由清扫任务裁决离线。
func (p *Poller) pollOne(c models.Client) {
	url := fmt.Sprintf("http://%s:%d%s", c.ClientIP, c.ClientPort, p.config.StatsPath)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := p.client.DoTimeout(req, resp, p.config.Timeout); err != nil {
		p.logger.Warn("轮询客户端失败，视为一次丢失的心跳",
			zap.String("clientId", c.ClientID),
			zap.String("url", url),
			zap.Error(err))
		return
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		p.logger.Warn("轮询客户端返回异常状态码",
			zap.String("clientId", c.ClientID),
			zap.Int("statusCode", resp.StatusCode()))
		return
	}

	var pools []models.RawThreadPoolStat
	if err := json.Unmarshal(resp.Body(), &pools); err != nil {
		p.logger.Warn("解析客户端统计数据失败",
			zap.String("clientId", c.ClientID),
			zap.Error(err))
		return
	}

	now := time.Now()
	p.sink.Touch(c.ClientID, now)
	p.sink.Ingest(c.ClientID, pools, now)
}
