package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var FormsSaved = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formflow_forms_saved_total",
	Help: "The total number of form schemas saved",
})

var SubmissionsStored = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formflow_submissions_stored_total",
	Help: "The total number of submissions stored",
})

var ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formflow_validation_failures_total",
	Help: "The number of failed validation rules by rule type",
}, []string{"rule"})

var StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "formflow_storage_errors_total",
	Help: "The number of storage errors by operation",
}, []string{"operation"})

var ExportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "formflow_export_duration_seconds",
	Help:    "The duration of form exports",
	Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
}, []string{"format"})

var EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "formflow_event_publish_failures_total",
	Help: "The number of submission events that could not be published",
})
