package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the bot's Prometheus collectors. A nil *Registry is valid
// and records nothing.
type Registry struct {
	SyncPassDuration prometheus.Histogram
	SyncUsersTotal   *prometheus.CounterVec
	FaceitLookups    *prometheus.CounterVec
	RoleOperations   *prometheus.CounterVec
	PanelPublish     *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		SyncPassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rolebot_sync_pass_duration_seconds",
			Help:    "Duration of a full rank sync pass in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		SyncUsersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolebot_sync_users_total",
			Help: "Tracked users processed by rank sync, by result",
		}, []string{"result"}),
		FaceitLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolebot_faceit_lookups_total",
			Help: "Faceit player lookups by result",
		}, []string{"result"}),
		RoleOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolebot_role_operations_total",
			Help: "Discord role grants and revocations by result",
		}, []string{"op", "result"}),
		PanelPublish: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolebot_panel_publish_total",
			Help: "Role panel publications by action",
		}, []string{"action"}),
	}
}

func (r *Registry) ObservePass(d time.Duration) {
	if r == nil {
		return
	}
	r.SyncPassDuration.Observe(d.Seconds())
}

func (r *Registry) SyncUser(result string) {
	if r == nil {
		return
	}
	r.SyncUsersTotal.WithLabelValues(result).Inc()
}

func (r *Registry) Lookup(result string) {
	if r == nil {
		return
	}
	r.FaceitLookups.WithLabelValues(result).Inc()
}

// RoleOperation records a grant ("add") or revocation ("remove").
func (r *Registry) RoleOperation(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.RoleOperations.WithLabelValues(op, result).Inc()
}

func (r *Registry) Publish(action string) {
	if r == nil {
		return
	}
	r.PanelPublish.WithLabelValues(action).Inc()
}
