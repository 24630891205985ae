// Package metrics registers the Prometheus metrics for the delivery
// and authorization paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveriesTotal counts download requests by terminal state.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileserver_deliveries_total",
			Help: "Download requests by outcome (served_full, served_partial, not_modified, rejected, not_found)",
		},
		[]string{"outcome"},
	)

	// AuthRejectionsTotal counts authorization failures by internal
	// reason. The external response stays generic; this is the only
	// place the sub-cause is visible.
	AuthRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileserver_auth_rejections_total",
			Help: "Authorization rejections by internal reason",
		},
		[]string{"reason"},
	)

	// IntegrityInconsistenciesTotal counts resource records whose bytes
	// were missing on disk at delivery time.
	IntegrityInconsistenciesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileserver_integrity_inconsistencies_total",
			Help: "Resource records found without backing bytes on disk",
		},
	)
)

// Delivery outcome label values
const (
	OutcomeServedFull    = "served_full"
	OutcomeServedPartial = "served_partial"
	OutcomeNotModified   = "not_modified"
	OutcomeRejected      = "rejected"
	OutcomeNotFound      = "not_found"
)
