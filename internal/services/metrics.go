package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regdesk_decisions_total",
		Help: "Verification decisions by decision and outcome",
	}, []string{"decision", "outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regdesk_notifications_total",
		Help: "Notification dispatch attempts by kind and result",
	}, []string{"kind", "result"})

	blobUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regdesk_blob_uploads_total",
		Help: "Blob uploads by folder and result",
	}, []string{"folder", "result"})

	registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regdesk_registrations_total",
		Help: "Registration submissions by result",
	}, []string{"result"})
)

// Decision outcomes.
const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)
