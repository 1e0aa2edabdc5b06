package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// collector exposes daemon state as metrics, read on each scrape.
type collector struct {
	srv *Server

	uptimeSeconds  *prometheus.Desc
	sessionActive  *prometheus.Desc
	candidateDirty *prometheus.Desc
	configBytes    *prometheus.Desc
	historyEntries *prometheus.Desc
	confirmPending *prometheus.Desc
	eventsTotal    *prometheus.Desc
}

func newCollector(srv *Server) *collector {
	return &collector{
		srv: srv,
		uptimeSeconds: prometheus.NewDesc(
			"netcli_uptime_seconds",
			"Seconds since the API server started.",
			nil, nil,
		),
		sessionActive: prometheus.NewDesc(
			"netcli_config_session_active",
			"Whether a configuration session is open.",
			nil, nil,
		),
		candidateDirty: prometheus.NewDesc(
			"netcli_candidate_dirty",
			"Whether the candidate differs from the running configuration.",
			nil, nil,
		),
		configBytes: prometheus.NewDesc(
			"netcli_running_config_bytes",
			"Size of the running configuration in display form.",
			nil, nil,
		),
		historyEntries: prometheus.NewDesc(
			"netcli_commit_history_entries",
			"Commits held in the in-memory history ring.",
			nil, nil,
		),
		confirmPending: prometheus.NewDesc(
			"netcli_commit_confirm_pending",
			"Whether a confirmed commit is awaiting confirmation.",
			nil, nil,
		),
		eventsTotal: prometheus.NewDesc(
			"netcli_config_events_total",
			"Configuration events recorded since start.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uptimeSeconds
	ch <- c.sessionActive
	ch <- c.candidateDirty
	ch <- c.configBytes
	ch <- c.historyEntries
	ch <- c.confirmPending
	ch <- c.eventsTotal
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	srv := c.srv
	ch <- prometheus.MustNewConstMetric(c.uptimeSeconds, prometheus.GaugeValue,
		time.Since(srv.startTime).Seconds())

	if srv.store != nil {
		ch <- prometheus.MustNewConstMetric(c.sessionActive, prometheus.GaugeValue,
			boolGauge(srv.store.InConfigMode()))
		ch <- prometheus.MustNewConstMetric(c.candidateDirty, prometheus.GaugeValue,
			boolGauge(srv.store.IsDirty()))
		ch <- prometheus.MustNewConstMetric(c.configBytes, prometheus.GaugeValue,
			float64(len(srv.store.RunningSnapshot().Format())))
		ch <- prometheus.MustNewConstMetric(c.historyEntries, prometheus.GaugeValue,
			float64(len(srv.store.History())))
	}

	if srv.engine != nil {
		_, pending := srv.engine.Pending()
		ch <- prometheus.MustNewConstMetric(c.confirmPending, prometheus.GaugeValue,
			boolGauge(pending))
	}

	if srv.events != nil {
		var seq uint64
		if latest := srv.events.Latest(1); len(latest) == 1 {
			seq = latest[0].Seq
		}
		ch <- prometheus.MustNewConstMetric(c.eventsTotal, prometheus.CounterValue,
			float64(seq))
	}
}

// statusWriter captures the response code for the request counter. It
// forwards Flush so the SSE stream keeps working behind it.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument counts every request, including rejected ones, which is
// why it wraps outside the auth middleware. 404s are folded into one
// label so path scanners cannot grow the series set.
func instrument(reg prometheus.Registerer, next http.Handler) http.Handler {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netcli_http_requests_total",
		Help: "API requests by method, path and status code.",
	}, []string{"method", "path", "code"})
	reg.MustRegister(requests)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if sw.code == http.StatusNotFound {
			path = "unmatched"
		}
		requests.WithLabelValues(r.Method, path, strconv.Itoa(sw.code)).Inc()
	})
}
