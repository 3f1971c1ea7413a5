// Package main 提供线程池监控服务的入口点
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tpadmin/app"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "./conf/tpadmin.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tpadmin v%s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Printf("Git 提交: %s\n", GitCommit)
		return
	}

	log.Printf("启动 tpadmin v%s...\n", Version)
	log.Printf("使用配置文件: %s\n", *configPath)

	application := app.New()

	if err := application.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v\n", err)
	}

	if err := application.Start(); err != nil {
		log.Fatalf("启动应用失败: %v\n", err)
	}

	// 收到信号后优雅退出
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalChan
	log.Printf("收到信号 %v，正在优雅退出...\n", sig)

	if err := application.Stop(); err != nil {
		log.Printf("停止应用失败: %v\n", err)
	}

	log.Println("tpadmin 服务已停止")
}
