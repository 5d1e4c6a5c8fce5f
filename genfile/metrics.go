package genfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OperationsTotal counts slot manager operations by kind, file type and result.
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "blog_genfile_operations_total",
		Help: "Generated file operations on posts",
	},
	[]string{"op", "type", "result"},
)

// StagedBytes observes the size of files moved into storage.
var StagedBytes = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "blog_genfile_size_bytes",
		Help:    "Size of generated files written to storage",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	},
)
