package handlers

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/pkg/logger"
	"gorm.io/gorm"
)

var registerOnce sync.Once

// teamCollector reports team counts per status at scrape time.
type teamCollector struct {
	teams *services.TeamService
	desc  *prometheus.Desc
}

func newTeamCollector(teams *services.TeamService) *teamCollector {
	return &teamCollector{
		teams: teams,
		desc: prometheus.NewDesc(
			"regdesk_teams",
			"Registered teams by verification status.",
			[]string{"status"}, nil,
		),
	}
}

func (tc *teamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- tc.desc
}

func (tc *teamCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := tc.teams.CountByStatus()
	if err != nil {
		logger.Warnf("[Metrics] Failed to count teams: %v", err)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(tc.desc, prometheus.GaugeValue, float64(n), status)
	}
}

// RegisterMetrics adds the database pool and team collectors to the default
// registry. Later calls are no-ops.
func RegisterMetrics(db *gorm.DB, teams *services.TeamService, queue services.TaskQueue) {
	registerOnce.Do(func() {
		if sqlDB, err := db.DB(); err == nil {
			prometheus.MustRegister(collectors.NewDBStatsCollector(sqlDB, "regdesk"))
		}
		prometheus.MustRegister(newTeamCollector(teams))
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "regdesk_queue_async_enabled",
			Help: "Whether the Redis-backed queue is in use (1=yes, 0=no).",
		}, func() float64 {
			if queue != nil && queue.IsAsync() {
				return 1
			}
			return 0
		}))
	})
}

// Metrics exposes the default registry in the Prometheus text format.
// GET /metrics
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
