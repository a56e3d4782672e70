package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/external"
	"github.com/iabetor/narrator/internal/hub"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/modelcache"
	"github.com/iabetor/narrator/internal/runtime"
	"github.com/iabetor/narrator/internal/runtime/command"
	"github.com/iabetor/narrator/internal/runtime/sherpa"
	"github.com/iabetor/narrator/internal/tts"
	"github.com/iabetor/narrator/internal/voice"
)

// Services 是进程级上下文：模型缓存、运行时与外部工具，在多个编排器之间共享。
type Services struct {
	Config   *config.Config
	Cache    *modelcache.Cache
	Deps     tts.Deps
	Releaser runtime.DeviceReleaser
}

// NewServices 按配置初始化共享组件，进程退出前需调用 Close。
func NewServices(cfg *config.Config) (*Services, error) {
	catalog, err := tts.LoadCatalog(cfg.Models.CatalogFile)
	if err != nil {
		return nil, err
	}

	modelHub := hub.NewLocalHub(cfg.Paths.ModelsDir)

	var loader runtime.Loader
	var releaser runtime.DeviceReleaser
	switch cfg.Runtime.Backend {
	case "sherpa":
		loader = sherpa.NewLoader(modelHub, cfg.Runtime.NumThreads)
	case "command":
		workDir := filepath.Join(os.TempDir(), "narrator")
		cl := command.NewLoader(cfg.Runtime.Command, cfg.Runtime.Args, workDir)
		loader = cl
		releaser = cl
	default:
		return nil, fmt.Errorf("[orchestrator] 未知的推理后端: %s", cfg.Runtime.Backend)
	}

	var opts []modelcache.Option
	if releaser != nil {
		opts = append(opts, modelcache.WithReleaser(releaser, cfg.Session.Device))
	}
	cache := modelcache.New(cfg.Models.MaxInMemory, opts...)

	runner := external.ExecRunner{}
	svc := &Services{
		Config: cfg,
		Cache:  cache,
		Deps: tts.Deps{
			Cache:      cache,
			Loader:     loader,
			Hub:        modelHub,
			Catalog:    catalog,
			Normalizer: external.NewNormalizer(cfg.Tools.FFmpeg, runner),
			Shifter:    external.NewPitchShifter(cfg.Tools.Sox, runner),
			Classifier: voice.NewPitchClassifier(),
		},
		Releaser: releaser,
	}

	logger.Infof("[orchestrator] 共享组件已初始化 (backend=%s, device=%s, maxInMemory=%d)",
		cfg.Runtime.Backend, cfg.Session.Device, cache.Capacity())
	return svc, nil
}

// Close 清空模型缓存并释放所有模型。
func (s *Services) Close() error {
	if s.Cache != nil {
		return s.Cache.Close()
	}
	return nil
}
