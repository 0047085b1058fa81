package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/downfa11-org/go-recordlog/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(FlushesTotal, FlushLatency, FlushedRecords, FlushedBytes)
	prometheus.MustRegister(ProduceLatency, FetchLatency, FetchRecords, CorruptSegments, IndexLinesSkipped)
}

// StartMetricsServer serves /metrics on port in the background. The returned
// server is shut down by the caller.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		util.Info("[METRICS] Prometheus exporter listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("[METRICS] Failed to start metrics server: %v", err)
		}
	}()
	return srv
}

// ObserveFlush records the outcome of one log flush.
func ObserveFlush(elapsed time.Duration, records, bytes int, err error) {
	FlushLatency.Observe(elapsed.Seconds())
	if err != nil {
		FlushesTotal.WithLabelValues("failed").Inc()
		return
	}
	FlushesTotal.WithLabelValues("ok").Inc()
	FlushedRecords.Add(float64(records))
	FlushedBytes.Add(float64(bytes))
}

func ObserveProduce(elapsed time.Duration) {
	ProduceLatency.Observe(elapsed.Seconds())
}

func ObserveFetch(elapsed time.Duration, returned int) {
	FetchLatency.Observe(elapsed.Seconds())
	FetchRecords.Observe(float64(returned))
}
