package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_scans_total",
	Help: "Integrity scans by result (success, failed, rejected)",
}, []string{"result"})

var ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "automaton_integrity_scan_duration_seconds",
	Help:    "Duration of full integrity scans in seconds",
	Buckets: prometheus.DefBuckets,
})

var RuleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_rule_failures_total",
	Help: "Rule checks that errored, panicked or timed out",
}, []string{"rule"})

var RulesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_rules_skipped_total",
	Help: "Rule checks abandoned because the scan deadline expired",
}, []string{"rule"})

var FixOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_fix_outcomes_total",
	Help: "Auto-fix results per issue (fixed, auto_resolved, fix_failed, skipped)",
}, []string{"outcome"})

var AuditFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automaton_integrity_audit_failures_total",
	Help: "Applied fixes whose audit event could not be recorded",
})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_http_requests_total",
	Help: "HTTP requests by method, route and status code",
}, []string{"method", "route", "code"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "automaton_integrity_http_request_duration_seconds",
	Help:    "HTTP request latency by method and route",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

var ConcurrencyRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automaton_integrity_concurrency_rejections_total",
	Help: "Scan or autofix calls rejected because the tenant was busy",
}, []string{"op"})
