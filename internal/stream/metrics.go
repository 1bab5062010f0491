package stream

import "github.com/prometheus/client_golang/prometheus"

var (
	streamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_streams_total",
			Help: "Relayed model streams by outcome.",
		},
		[]string{"outcome"},
	)
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_streams_active",
			Help: "Streams currently being relayed.",
		},
	)
	streamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_stream_chunks_total",
			Help: "Chunks written to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(streamsTotal, streamsActive, streamChunksTotal)
}
