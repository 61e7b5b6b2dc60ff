package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogurasousui/checkin-ledger/internal/core/finalization"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
)

type collectors struct {
	tenureOpened *prometheus.CounterVec
	tenureClosed *prometheus.CounterVec

	snapshotsCreated *prometheus.CounterVec

	finalizations     *prometheus.CounterVec
	finalizedCheckIns *prometheus.CounterVec
	rejections        *prometheus.CounterVec

	rpcTotal   *prometheus.CounterVec
	rpcLatency *prometheus.HistogramVec
}

var collectorsSingleton = sync.OnceValue(func() *collectors {
	return &collectors{
		tenureOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "tenure",
			Name:      "opened_total",
			Help:      "Total number of tenures opened, by subject kind.",
		}, []string{"kind"}),
		tenureClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "tenure",
			Name:      "closed_total",
			Help:      "Total number of tenures closed, by subject kind.",
		}, []string{"kind"}),
		snapshotsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "snapshot",
			Name:      "created_total",
			Help:      "Total number of snapshots appended, by change type.",
		}, []string{"change_type"}),
		finalizations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "finalization",
			Name:      "requests_total",
			Help:      "Total number of committed finalization requests, by change type.",
		}, []string{"change_type"}),
		finalizedCheckIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "finalization",
			Name:      "check_ins_total",
			Help:      "Total number of check-ins finalized, by change type.",
		}, []string{"change_type"}),
		rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "finalization",
			Name:      "rejected_total",
			Help:      "Total number of finalization requests rejected, by category.",
		}, []string{"category"}),
		rpcTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total number of unary RPCs handled, by method and status code.",
		}, []string{"method", "code"}),
		rpcLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkin",
			Subsystem: "grpc",
			Name:      "latency_seconds",
			Help:      "Latency distribution for unary RPCs.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5,
			},
		}, []string{"method"}),
	}
})

// Recorder はコアサービスの Observer を Prometheus のカウンタへ橋渡しします。
type Recorder struct {
	c *collectors
}

var (
	_ tenure.Observer       = (*Recorder)(nil)
	_ snapshot.Observer     = (*Recorder)(nil)
	_ finalization.Observer = (*Recorder)(nil)
)

// NewRecorder は既定レジストリに登録されたコレクタを使う Recorder を返します。
func NewRecorder() *Recorder {
	return &Recorder{c: collectorsSingleton()}
}

func (r *Recorder) TenureOpened(kind tenure.SubjectKind) {
	r.c.tenureOpened.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) TenureClosed(kind tenure.SubjectKind) {
	r.c.tenureClosed.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) SnapshotCreated(changeType snapshot.ChangeType) {
	r.c.snapshotsCreated.WithLabelValues(string(changeType)).Inc()
}

func (r *Recorder) Finalized(changeType snapshot.ChangeType, checkIns int) {
	r.c.finalizations.WithLabelValues(string(changeType)).Inc()
	r.c.finalizedCheckIns.WithLabelValues(string(changeType)).Add(float64(checkIns))
}

func (r *Recorder) Rejected(category finalization.Category) {
	r.c.rejections.WithLabelValues(string(category)).Inc()
}

// ObserveRPC は単項 RPC の結果と所要時間を記録します。
func (r *Recorder) ObserveRPC(method, code string, elapsed time.Duration) {
	r.c.rpcTotal.WithLabelValues(method, code).Inc()
	r.c.rpcLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// NewServer はメトリクス公開用の HTTP サーバーを返します。ListenAddr が空なら nil です。
func NewServer(cfg config.MetricsConfig) *http.Server {
	if cfg.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
