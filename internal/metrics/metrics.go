// Package metrics 定义 narrator 的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 模型缓存
	modelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_model_loads_total",
		Help: "Total number of model loads",
	}, []string{"engine", "status"})

	cacheFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "narrator_model_cache_flushes_total",
		Help: "Total number of full model cache flushes",
	})

	cachedModels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "narrator_model_cache_entries",
		Help: "Number of models currently resident in the cache",
	})

	// 合成
	fragmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_fragment_failures_total",
		Help: "Fragments replaced with silence after a synthesis failure",
	}, []string{"engine"})

	sentences = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_sentences_total",
		Help: "Total number of sentences processed",
	}, []string{"engine", "status"})

	sentenceAudio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "narrator_sentence_audio_seconds",
		Help:    "Duration of emitted sentence audio in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	externalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "narrator_external_tool_failures_total",
		Help: "Failures of external audio tools",
	}, []string{"tool"})
)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordModelLoad 记录一次模型加载。
func RecordModelLoad(engine string, ok bool) {
	modelLoads.WithLabelValues(engine, status(ok)).Inc()
}

// RecordCacheFlush 记录一次整体清空。
func RecordCacheFlush() {
	cacheFlushes.Inc()
}

// SetCachedModels 更新驻留模型数量。
func SetCachedModels(n int) {
	cachedModels.Set(float64(n))
}

// RecordFragmentFailure 记录被静音替换的片段。
func RecordFragmentFailure(engine string) {
	fragmentFailures.WithLabelValues(engine).Inc()
}

// RecordSentence 记录一句的转换结果及其音频时长。
func RecordSentence(engine string, ok bool, seconds float64) {
	sentences.WithLabelValues(engine, status(ok)).Inc()
	if ok {
		sentenceAudio.Observe(seconds)
	}
}

// RecordExternalFailure 记录外部工具失败。
func RecordExternalFailure(tool string) {
	externalFailures.WithLabelValues(tool).Inc()
}

// Handler 返回 /metrics 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
