package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TasksSubmitted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "video_tasks_submitted_total", Help: "Video tasks created and reserved"})
	TasksCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "video_tasks_completed_total", Help: "Video tasks that reached COMPLETED"})
	TasksFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "video_tasks_failed_total", Help: "Video tasks that reached FAILED"})
	WebhookRejected  = prometheus.NewCounter(prometheus.CounterOpts{Name: "video_webhook_rejected_total", Help: "Provider callbacks rejected by signature verification"})
	CreditsRefunded  = prometheus.NewCounter(prometheus.CounterOpts{Name: "credits_refunded_total", Help: "Credits refunded on failed or cancelled tasks"})
	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "event_stream_subscribers", Help: "Open event stream connections"})
)

// Handler exposes the /metrics endpoint, registering the collectors
// once.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TasksSubmitted,
			TasksCompleted,
			TasksFailed,
			WebhookRejected,
			CreditsRefunded,
			EventSubscribers,
		)
	})
	return promhttp.Handler()
}
