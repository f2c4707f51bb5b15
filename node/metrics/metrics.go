// Package metrics exposes the three Prometheus endpoints spec §6 names:
// web, mine and archive, each a fixed port so operator dashboards can target
// them without service discovery. It is grounded on the teacher's
// HealthLogger (core/system_health_logging.go): same registry-per-exporter
// construction, same ListenAndServe-in-a-goroutine lifecycle, generalized
// from one combined exporter to three narrow ones and from net/http's bare
// ServeMux to chi so each exporter can grow operator routes (e.g. /healthz)
// without restructuring.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Exporter owns one Prometheus registry and the HTTP server serving it.
type Exporter struct {
	name     string
	registry *prometheus.Registry
	srv      *http.Server
	log      *logrus.Entry
}

func newExporter(name string, addr string) *Exporter {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Exporter{
		name:     name,
		registry: reg,
		srv:      &http.Server{Addr: addr, Handler: r},
		log:      logrus.WithFields(logrus.Fields{"component": "metrics", "exporter": name}),
	}
}

// Start runs the exporter's HTTP server in a background goroutine.
func (e *Exporter) Start() {
	go func() {
		if err := e.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the exporter's HTTP server.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}

// WebMetrics are counters/gauges for the read-only web-facing archive
// surface (spec §6 "web" exporter).
type WebMetrics struct {
	*Exporter
	SpoolsServed  prometheus.Counter
	ProofsServed  prometheus.Counter
	RequestErrors prometheus.Counter
}

// NewWebMetrics builds the web exporter bound to addr.
func NewWebMetrics(addr string) *WebMetrics {
	e := newExporter("web", addr)
	m := &WebMetrics{
		Exporter: e,
		SpoolsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_web_spools_served_total",
			Help: "Spool reads served by the web surface.",
		}),
		ProofsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_web_proofs_served_total",
			Help: "Inclusion proofs served by the web surface.",
		}),
		RequestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_web_request_errors_total",
			Help: "Failed web surface requests.",
		}),
	}
	e.registry.MustRegister(m.SpoolsServed, m.ProofsServed, m.RequestErrors)
	return m
}

// MineMetrics track the mining/challenge-loop surface (spec §6 "mine"
// exporter), keyed off core.MineEvent as it is emitted.
type MineMetrics struct {
	*Exporter
	ProofsAccepted  prometheus.Counter
	ProofsRejected  prometheus.Counter
	ExpiredAccepted prometheus.Counter
	RewardTotal     prometheus.Counter
	BlocksAdvanced  prometheus.Counter
}

// NewMineMetrics builds the mine exporter bound to addr.
func NewMineMetrics(addr string) *MineMetrics {
	e := newExporter("mine", addr)
	m := &MineMetrics{
		Exporter: e,
		ProofsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_mine_proofs_accepted_total",
			Help: "Accepted PoW/PoA submissions.",
		}),
		ProofsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_mine_proofs_rejected_total",
			Help: "Rejected PoW/PoA submissions.",
		}),
		ExpiredAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_mine_expired_spool_proofs_total",
			Help: "Accepted proofs that took the expired-spool fallback branch.",
		}),
		RewardTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_mine_reward_total",
			Help: "Cumulative reward paid out across accepted proofs.",
		}),
		BlocksAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_mine_blocks_advanced_total",
			Help: "Number of times a proof advanced the block/epoch.",
		}),
	}
	e.registry.MustRegister(m.ProofsAccepted, m.ProofsRejected, m.ExpiredAccepted, m.RewardTotal, m.BlocksAdvanced)
	return m
}

// ArchiveMetrics track the off-ledger ingestion/packer surface (spec §6
// "archive" exporter).
type ArchiveMetrics struct {
	*Exporter
	SegmentsPacked   prometheus.Counter
	PackFailures     prometheus.Counter
	BackfillJobs     prometheus.Counter
	StoreSizeSectors prometheus.Gauge
	LastPollAge      prometheus.Gauge
}

// NewArchiveMetrics builds the archive exporter bound to addr.
func NewArchiveMetrics(addr string) *ArchiveMetrics {
	e := newExporter("archive", addr)
	m := &ArchiveMetrics{
		Exporter: e,
		SegmentsPacked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_archive_segments_packed_total",
			Help: "Segments successfully packed and stored.",
		}),
		PackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_archive_pack_failures_total",
			Help: "Pack jobs that failed solve or re-verification.",
		}),
		BackfillJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spoolchain_archive_backfill_jobs_total",
			Help: "Jobs enqueued by the challenge or resync loops rather than live ingestion.",
		}),
		StoreSizeSectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolchain_archive_store_sectors",
			Help: "Number of sectors with a cached canopy root.",
		}),
		LastPollAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spoolchain_archive_last_poll_age_seconds",
			Help: "Seconds since the challenge loop last ran.",
		}),
	}
	e.registry.MustRegister(m.SegmentsPacked, m.PackFailures, m.BackfillJobs, m.StoreSizeSectors, m.LastPollAge)
	return m
}
