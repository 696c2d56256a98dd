package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder 汇总一次导出的运行指标。零值不可用，nil 接收者上的方法均为空操作，
// 调用方无需判断是否启用了指标输出。
type Recorder struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	placeholders *prometheus.CounterVec
	media        *prometheus.CounterVec
	transcripts  *prometheus.CounterVec
	pages        prometheus.Gauge
	stages       *prometheus.HistogramVec
}

// New 创建使用独立 Registry 的 Recorder。
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papyrus_messages_total",
			Help: "Messages placed on pages, by message type.",
		}, []string{"type"}),
		placeholders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papyrus_placeholders_total",
			Help: "Media messages rendered as text placeholders, by message type.",
		}, []string{"type"}),
		media: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papyrus_media_resolve_total",
			Help: "Media resolution outcomes.",
		}, []string{"result"}),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papyrus_transcripts_total",
			Help: "Voice transcripts, by source (cache, model, failed).",
		}, []string{"source"}),
		pages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papyrus_pages",
			Help: "Pages in the last rendered document.",
		}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "papyrus_stage_seconds",
			Help:    "Wall time of each export stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
	}
	r.registry.MustRegister(r.messages, r.placeholders, r.media, r.transcripts, r.pages, r.stages)
	return r
}

func (r *Recorder) Message(kind string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(kind).Inc()
}

func (r *Recorder) Placeholder(kind string) {
	if r == nil {
		return
	}
	r.placeholders.WithLabelValues(kind).Inc()
}

// MediaResult 记录媒体解析结果，result 取值如 cache/fetched/local/missing。
func (r *Recorder) MediaResult(result string) {
	if r == nil {
		return
	}
	r.media.WithLabelValues(result).Inc()
}

func (r *Recorder) Transcript(source string) {
	if r == nil {
		return
	}
	r.transcripts.WithLabelValues(source).Inc()
}

func (r *Recorder) Pages(n int) {
	if r == nil {
		return
	}
	r.pages.Set(float64(n))
}

// Stage 返回结束计时的函数，用法：defer rec.Stage("layout")()。
func (r *Recorder) Stage(name string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.stages.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// WriteTextfile 以 node_exporter textfile 格式写出全部指标。
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建指标目录失败: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("写入指标文件失败: %w", err)
	}
	return nil
}

// Value 读取单标签指标的当前值，找不到时为 0。无标签指标传空 label。
func (r *Recorder) Value(name, label string) float64 {
	if r == nil {
		return 0
	}
	families, err := r.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label != "" && (len(m.GetLabel()) == 0 || m.GetLabel()[0].GetValue() != label) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}
