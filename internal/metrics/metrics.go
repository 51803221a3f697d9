// Package metrics provides Prometheus metrics for the light painter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lightpaint"

// Metrics holds the painter's collectors. A Metrics is registered once, on
// the registry given to New.
type Metrics struct {
	Gestures       *prometheus.CounterVec
	GestureSeconds prometheus.Histogram
	Frames         prometheus.Counter
	EncoderErrors  prometheus.Counter

	Scans         prometheus.Counter
	CatalogImages prometheus.Gauge
	Loads         *prometheus.CounterVec
	LoadSeconds   prometheus.Histogram

	MediaEvents *prometheus.CounterVec
	SpeedPixel  prometheus.Gauge
}

// New creates the painter metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Gestures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paint",
			Name:      "gestures_total",
			Help:      "Painting gestures started, by clock source",
		}, []string{"clock"}),
		GestureSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "paint",
			Name:      "gesture_seconds",
			Help:      "Wall time of painting gestures",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paint",
			Name:      "frames_total",
			Help:      "Columns pushed to the strip while painting",
		}),
		EncoderErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "encoder",
			Name:      "read_errors_total",
			Help:      "Failed positional encoder reads",
		}),
		Scans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "scans_total",
			Help:      "Completed media scans",
		}),
		CatalogImages: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "images",
			Help:      "Paintable images in the catalog",
		}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "loads_total",
			Help:      "Image loads, by result",
		}, []string{"result"}),
		LoadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "load_seconds",
			Help:      "Time to decode, resize and prepare an image",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
		}),
		MediaEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "events_total",
			Help:      "Removable media notifications, by kind",
		}, []string{"kind"}),
		SpeedPixel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "paint",
			Name:      "speed_pixel",
			Help:      "Current speed selection",
		}),
	}
}

// Discard returns metrics registered on a throwaway registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
