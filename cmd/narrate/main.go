package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/database"
	"github.com/iabetor/narrator/internal/document"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/metrics"
	"github.com/iabetor/narrator/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "configs/narrator.yaml", "配置文件路径")
	input := flag.String("input", "", "待转换的 UTF-8 文本文档")
	maxChars := flag.Int("max-chars", document.DefaultMaxChars, "单个合成分块的最大字符数")
	reset := flag.Bool("reset", false, "忽略已有进度，从头转换")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "用法: narrate [-config <path>] -input <document.txt> [-max-chars N] [-reset]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] narrator 启动中 (engine=%s, language=%s, log_level=%s)",
		cfg.Session.Engine, cfg.Session.Language, cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，当前句结束后停止
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在停止...", sig)
		cancel()
	}()

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := run(ctx, cfg, *input, *maxChars, *reset); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("[main] 转换失败: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("[main] narrator 已停止")
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("[main] 指标服务监听 %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("[main] 指标服务退出: %v", err)
		}
	}()
	return srv
}

func run(ctx context.Context, cfg *config.Config, input string, maxChars int, reset bool) error {
	text, err := document.Read(input)
	if err != nil {
		return err
	}
	sentences := document.Split(text, maxChars)
	logger.Infof("[main] %s 共 %d 句", input, len(sentences))

	db, err := database.Open(cfg.Progress.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	s := cfg.Session
	progress, err := database.NewProgressStore(db, database.DocumentFor(input, s.Engine, s.FineTuned, s.Language))
	if err != nil {
		return err
	}
	if reset {
		if err := progress.Reset(); err != nil {
			return err
		}
		// 字幕需与音频一同重建
		if err := os.Remove(cfg.Paths.VTTPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除字幕文件失败: %w", err)
		}
	}

	svc, err := orchestrator.NewServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	orch, err := orchestrator.New(svc)
	if err != nil {
		return err
	}
	defer orch.Close()

	rep, convErr := orch.ConvertDocument(ctx, progress, sentences)
	if errors.Is(convErr, context.Canceled) {
		return convErr
	}

	sum, err := progress.Summary()
	if err != nil {
		return err
	}
	logger.Infof("[main] 本次转换 %d 句，跳过 %d 句；累计完成 %d 句 (%.1f 秒)",
		rep.Converted, rep.Skipped, sum.Done, sum.Seconds)
	if convErr != nil {
		if rep.Failed != "" {
			return fmt.Errorf("第 %s 句转换失败，修正后重新运行将从该句继续: %w", rep.Failed, convErr)
		}
		return convErr
	}
	return nil
}
