package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_kafka_published_total",
		Help: "Events written to Kafka",
	}, []string{"topic"})

	publishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_kafka_publish_errors_total",
		Help: "Events Kafka did not accept",
	}, []string{"topic"})

	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_kafka_publish_duration_seconds",
		Help:    "Time to write one event, including broker acknowledgement",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"topic"})
)
