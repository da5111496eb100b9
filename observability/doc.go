// Package observability exports editor metrics to Prometheus.
package observability
