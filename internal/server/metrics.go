package server

import (
	"time"

	"crmimport/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmimport",
		Subsystem: "endpoint",
		Name:      "rows_total",
		Help:      "Rows applied by the import endpoint broken down by action.",
	}, []string{"action"})

	importRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmimport",
		Subsystem: "endpoint",
		Name:      "requests_total",
		Help:      "Chunk requests broken down by endpoint and result.",
	}, []string{"endpoint", "result"})

	importLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crmimport",
		Subsystem: "endpoint",
		Name:      "latency_seconds",
		Help:      "Latency distribution for chunk requests.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint", "result"})
)

func instrument(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		result := "2xx"
		switch status := c.Writer.Status(); {
		case status >= 500:
			result = "5xx"
		case status >= 400:
			result = "4xx"
		}
		importRequests.WithLabelValues(endpoint, result).Inc()
		importLatency.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
	}
}

func observeRows(resp *models.ChunkResponse) {
	importRows.WithLabelValues(string(models.ActionInserted)).Add(float64(resp.Inserted))
	importRows.WithLabelValues(string(models.ActionUpdated)).Add(float64(resp.Updated))
	importRows.WithLabelValues(string(models.ActionSkipped)).Add(float64(resp.Skipped))
}
