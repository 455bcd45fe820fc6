package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldstream_uploads_total",
		Help: "Bulk uploads processed, by record kind and outcome.",
	}, []string{"kind", "outcome"})

	UploadRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldstream_upload_rows_total",
		Help: "Upload data rows seen, by record kind and validation result.",
	}, []string{"kind", "result"})

	UploadErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldstream_upload_validation_errors_total",
		Help: "Validation rule hits during uploads, by record kind and rule.",
	}, []string{"kind", "error_type"})
)
