// Package external 封装 ffmpeg、sox 等外部音频工具。
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/iabetor/narrator/internal/logger"
)

// ErrToolFailed 表示外部工具执行失败。
var ErrToolFailed = errors.New("外部工具执行失败")

// Runner 执行外部命令，测试中可替换。
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner 使用 os/exec 执行命令，stderr 会附加到错误信息中。
type ExecRunner struct{}

// Run 执行命令并等待结束。
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%w: 找不到 %s: %v", ErrToolFailed, name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	// 以空环境运行
	cmd.Env = []string{}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			logger.Warnf("[external] %s stderr: %s", name, msg)
		}
		return fmt.Errorf("%w: %s: %v", ErrToolFailed, name, err)
	}
	return nil
}
