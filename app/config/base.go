// Package config 提供应用配置的定义与加载
package config

import (
	"fmt"
	"os"

	"tpadmin/pkg/common"

	"gopkg.in/yaml.v3"
)

// SystemConfig 表示系统配置
type SystemConfig struct {
	Mode    string `yaml:"mode"`
	DataDir string `yaml:"data_dir"`
}

// NetworkConfig 表示网络配置
type NetworkConfig struct {
	BindIP   string `yaml:"bind_ip"`
	HttpPort int    `yaml:"http_port"`
}

// DatabaseConfig 表示数据库配置
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// MonitorConfig 表示采集与聚合配置
type MonitorConfig struct {
	// HeartbeatTimeoutSeconds 心跳超时（秒）
	HeartbeatTimeoutSeconds int `yaml:"heartbeat_timeout_seconds"`
	// SweepIntervalSeconds 离线清扫周期（秒）
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	// WindowSeconds tps计算窗口（秒）
	WindowSeconds int `yaml:"window_seconds"`
	// RetentionDays 历史记录保留天数
	RetentionDays int `yaml:"retention_days"`
	// PollEnabled 是否启用拉取式采集
	PollEnabled bool `yaml:"poll_enabled"`
	// PollIntervalSeconds 拉取周期（秒）
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// PollTimeoutSeconds 单次拉取超时（秒）
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`
	// PollStatsPath 客户端统计接口路径
	PollStatsPath string `yaml:"poll_stats_path"`
}

// BaseConfig 表示应用程序配置
type BaseConfig struct {
	System   *SystemConfig     `yaml:"system"`
	Network  *NetworkConfig    `yaml:"network"`
	Logger   *common.LogConfig `yaml:"logger"`
	Database *DatabaseConfig   `yaml:"database"`
	Monitor  *MonitorConfig    `yaml:"monitor"`
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *BaseConfig {
	return &BaseConfig{
		System: &SystemConfig{
			Mode:    "standalone",
			DataDir: "./data",
		},
		Network: &NetworkConfig{
			BindIP:   "0.0.0.0",
			HttpPort: 8080,
		},
		Logger: &common.LogConfig{
			Level:   common.InfoLevel,
			Console: true,
		},
		Database: &DatabaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Monitor: &MonitorConfig{
			HeartbeatTimeoutSeconds: 90,
			SweepIntervalSeconds:    30,
			WindowSeconds:           60,
			RetentionDays:           7,
			PollIntervalSeconds:     30,
			PollTimeoutSeconds:      5,
			PollStatsPath:           "/dtp/stats",
		},
	}
}

// LoadConfig 从yaml文件加载配置，未设置的字段使用默认值。
// 配置文件不存在时直接使用默认配置。
func LoadConfig(path string) (*BaseConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *BaseConfig) Validate() error {
	if c.Network == nil || c.Network.HttpPort <= 0 || c.Network.HttpPort > 65535 {
		return fmt.Errorf("http_port取值不合法")
	}
	if c.Monitor == nil {
		return fmt.Errorf("缺少monitor配置")
	}
	if c.Monitor.HeartbeatTimeoutSeconds <= 0 {
		return fmt.Errorf("heartbeat_timeout_seconds必须为正数")
	}
	if c.Monitor.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("sweep_interval_seconds必须为正数")
	}
	if c.Monitor.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds必须为正数")
	}
	return nil
}
