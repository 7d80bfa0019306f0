// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "os2obs_notifications_total",
		Help: "Websocket frames received by kind",
	}, []string{"kind"}) // kind=status|ack|other

	slideChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os2obs_slide_changes_total",
		Help: "Slide transitions observed while the presentation was running",
	})

	slidesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os2obs_slides_written_total",
		Help: "Slides fully processed and written to the output files",
	})

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "os2obs_stage_failures_total",
		Help: "Per-notification processing failures by stage",
	}, []string{"stage"}) // stage=fetch|extract|write

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "os2obs_reconnects_total",
		Help: "Websocket reconnect attempts after a disconnect or failed dial",
	})

	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "os2obs_connection_state",
		Help: "Bridge connection state (0=disconnected 1=connecting 2=subscribed)",
	})
)

func IncNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}

func IncSlideChange() {
	slideChangesTotal.Inc()
}

func IncSlideWritten() {
	slidesWrittenTotal.Inc()
}

func IncStageFailure(stage string) {
	stageFailuresTotal.WithLabelValues(stage).Inc()
}

func IncReconnect() {
	reconnectsTotal.Inc()
}

func SetConnectionState(v float64) {
	connectionState.Set(v)
}
