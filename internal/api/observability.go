package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/arvik-health/medgate/internal/mesh"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	uploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "uploads_total", Help: "Document uploads by outcome"},
		[]string{"outcome"},
	)
	jobTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "jobs_total", Help: "Processing jobs by outcome"},
		[]string{"outcome"},
	)
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "medgate", Name: "job_duration_seconds", Help: "Document processing duration", Buckets: prometheus.ExponentialBuckets(0.1, 2, 10)},
		[]string{"outcome"},
	)
	queuePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "medgate", Name: "queue_pending", Help: "Pending messages in queue consumer groups"},
		[]string{"stream"},
	)
	dlqInsertTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "dlq_insert_total", Help: "Total dead-letter insertions"},
		[]string{"stream", "reason"},
	)
	dlqDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "medgate", Name: "dlq_depth", Help: "Current dead-letter depth"},
		[]string{"stream"},
	)
	agentPollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "agent_poll_total", Help: "Agent health polls by resulting status"},
		[]string{"status"},
	)
	externalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "medgate", Name: "external_op_duration_seconds", Help: "Duration of external operations"},
		[]string{"op", "outcome"},
	)
	externalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "external_op_total", Help: "Total external operations"},
		[]string{"op", "outcome"},
	)
	busEventTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "medgate", Name: "bus_events_total", Help: "Lifecycle events seen on the mesh bus"},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, uploadTotal, jobTotal, jobDuration,
		queuePending, dlqInsertTotal, dlqDepth, agentPollTotal, externalDuration, externalTotal,
		busEventTotal)
}

// MetricsMiddleware records request count and duration per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		observer := reqDuration.WithLabelValues(c.Request.Method, path, status)
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			if eo, ok := observer.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(dur, prometheus.Labels{"trace_id": sc.TraceID().String()})
			} else {
				observer.Observe(dur)
			}
		} else {
			observer.Observe(dur)
		}
		reqTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// RecordUpload counts an upload outcome: accepted, rejected_type,
// rejected_extension, rejected_size, failed.
func RecordUpload(outcome string) { uploadTotal.WithLabelValues(outcome).Inc() }

// RecordJob counts a processing job outcome and its duration.
func RecordJob(outcome string, dur time.Duration) {
	jobTotal.WithLabelValues(outcome).Inc()
	jobDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

// SetQueuePending sets the pending-messages gauge for a stream.
func SetQueuePending(stream string, n int64) {
	queuePending.WithLabelValues(stream).Set(float64(n))
}

// RecordDLQInsert counts a dead-letter insertion.
func RecordDLQInsert(stream, reason string) {
	dlqInsertTotal.WithLabelValues(stream, reason).Inc()
}

// SetDLQDepth sets the dead-letter depth gauge.
func SetDLQDepth(stream string, n int64) {
	dlqDepth.WithLabelValues(stream).Set(float64(n))
}

// RecordAgentPoll counts a monitor poll by the status it produced.
func RecordAgentPoll(status string) { agentPollTotal.WithLabelValues(status).Inc() }

// SubscribeMetrics counts document and agent lifecycle events off the bus
// so they show up on /metrics no matter which component published them.
func SubscribeMetrics(b mesh.Bus) {
	for _, topic := range []string{
		mesh.TopicDocumentReceived,
		mesh.TopicDocumentProcessed,
		mesh.TopicDocumentFailed,
		mesh.TopicAgentStatus,
	} {
		_, _ = b.Subscribe(topic, func(ctx context.Context, e mesh.Event) {
			busEventTotal.WithLabelValues(e.Topic).Inc()
		})
	}
}

// RecordExternalOp records the duration and outcome of a call to another
// service (agent, TTS provider, upstream model).
func RecordExternalOp(op string, dur time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	externalDuration.WithLabelValues(op, outcome).Observe(dur.Seconds())
	externalTotal.WithLabelValues(op, outcome).Inc()
}
