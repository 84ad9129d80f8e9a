package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationLatency measures one rule-engine pass over the catalog
	EvaluationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recengine_rule_evaluation_seconds",
			Help:    "Rule evaluation latency in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// RulesApplied counts rules merged into a recommendation
	RulesApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_rules_applied_total",
			Help: "Total number of rules applied to recommendations",
		},
		[]string{"rule_id"},
	)

	// RulesContraindicated counts matched rules skipped by avoid_if
	RulesContraindicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_rules_contraindicated_total",
			Help: "Total number of matched rules skipped due to contraindications",
		},
		[]string{"rule_id"},
	)

	// Escalations counts final escalation verdicts
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_escalations_total",
			Help: "Total number of recommendations by escalation level",
		},
		[]string{"level"},
	)

	// RankingLatency measures product ranking time
	RankingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recengine_ranking_seconds",
			Help:    "Product ranking latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// AllergyFlags counts candidates flagged by the allergy filter
	AllergyFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_allergy_flags_total",
			Help: "Total number of candidate products flagged for allergens",
		},
		[]string{"mode"},
	)

	// CatalogReloads counts rule catalog reload attempts
	CatalogReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_catalog_reloads_total",
			Help: "Total number of rule catalog reloads",
		},
		[]string{"result"},
	)

	// CatalogRules exposes the size of the active catalog
	CatalogRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recengine_catalog_rules",
			Help: "Number of rules in the active catalog",
		},
	)

	// FeedbackReceived counts feedback records by satisfaction level
	FeedbackReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_feedback_received_total",
			Help: "Total number of feedback records received",
		},
		[]string{"satisfaction"},
	)

	// Requests counts inbound recommendation and feedback requests by
	// transport, operation and outcome
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recengine_requests_total",
			Help: "Total number of recommendation and feedback requests",
		},
		[]string{"transport", "operation", "outcome"},
	)

	// StorageLatency measures database latency per operation
	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recengine_storage_latency_seconds",
			Help:    "Database latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"operation"},
	)
)
