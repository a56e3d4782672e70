// Package hub 解析模型仓库中的文件到本地路径。
package hub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound 表示仓库中找不到请求的文件。
var ErrNotFound = errors.New("模型文件不存在")

// Hub 是模型仓库协作方：给定仓库标识与文件名，返回本地文件路径。
type Hub interface {
	Resolve(repo string, filenames ...string) ([]string, error)
}

// LocalHub 从本地镜像目录解析文件，布局为 <root>/<repo>/<filename>。
type LocalHub struct {
	root string
}

// NewLocalHub 创建本地镜像仓库。
func NewLocalHub(root string) *LocalHub {
	return &LocalHub{root: root}
}

// Root 返回镜像根目录。
func (h *LocalHub) Root() string {
	return h.root
}

// Resolve 返回每个文件的本地路径，任一文件缺失即返回 ErrNotFound。
func (h *LocalHub) Resolve(repo string, filenames ...string) ([]string, error) {
	if strings.Contains(repo, "..") {
		return nil, fmt.Errorf("[hub] 非法仓库标识: %s", repo)
	}
	dir := filepath.Join(h.root, filepath.FromSlash(repo))

	paths := make([]string, 0, len(filenames))
	for _, name := range filenames {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("[hub] %s/%s: %w", repo, name, ErrNotFound)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Dir 返回仓库在镜像中的目录，目录不存在时返回 ErrNotFound。
func (h *LocalHub) Dir(repo string) (string, error) {
	dir := filepath.Join(h.root, filepath.FromSlash(repo))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("[hub] %s: %w", repo, ErrNotFound)
	}
	return dir, nil
}
