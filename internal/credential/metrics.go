package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики жизненного цикла учётных данных.
var (
	credentialProvisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bg_credential_provisions_total",
		Help: "Общее количество выпусков аренды учётных данных по исходам.",
	}, []string{"outcome"})

	credentialFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bg_credential_fallbacks_total",
		Help: "Общее количество откатов к меньшей длительности сессии STS.",
	})

	leaseInvalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bg_lease_invalidations_total",
		Help: "Общее количество принудительных сбросов аренды по причинам.",
	}, []string{"reason"})
)
