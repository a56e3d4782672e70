package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/database"
)

func main() {
	configPath := flag.String("config", "configs/narrator.yaml", "配置文件路径")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.Progress.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开进度库失败: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	s := cfg.Session
	doc := database.DocumentFor(args[1], s.Engine, s.FineTuned, s.Language)
	store, err := database.NewProgressStore(db, doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		cmdStatus(store, doc)
	case "failed":
		cmdFailed(store)
	case "reset":
		cmdReset(store, cfg)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "narrator 转换进度管理工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: narrate-progress [-config <path>] <command> <document>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  status <文档>  显示已完成与失败的句数")
	fmt.Fprintln(os.Stderr, "  failed <文档>  列出失败的句子及原因")
	fmt.Fprintln(os.Stderr, "  reset  <文档>  清空进度与字幕，下次从头转换")
}

func cmdStatus(store *database.ProgressStore, doc database.Document) {
	sum, err := store.Summary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "统计失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("文档: %s (engine=%s, language=%s)\n", doc.Source, doc.Engine, doc.Language)
	fmt.Printf("  已完成: %d 句，共 %.1f 秒\n", sum.Done, sum.Seconds)
	fmt.Printf("  失败:   %d 句\n", sum.Failed)
}

func cmdFailed(store *database.ProgressStore) {
	failed, err := store.Failed()
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}
	if len(failed) == 0 {
		fmt.Println("没有失败的句子。")
		return
	}

	fmt.Printf("共 %d 句失败:\n", len(failed))
	fmt.Println("  句子   | 次数 | 原因")
	fmt.Println("  -------+------+----------")
	for _, p := range failed {
		fmt.Printf("  %-7s| %-5d| %s\n", p.Name, p.Attempts, p.Error)
	}
}

func cmdReset(store *database.ProgressStore, cfg *config.Config) {
	if err := store.Reset(); err != nil {
		fmt.Fprintf(os.Stderr, "清空进度失败: %v\n", err)
		os.Exit(1)
	}
	if err := os.Remove(cfg.Paths.VTTPath()); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "删除字幕文件失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("进度已清空。")
}
