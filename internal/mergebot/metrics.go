package mergebot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const metricNamespace = "tapmerge_mergebot"

const (
	mergeRunsMetricName        = "merge_runs_total"
	mergeRunDurationMetricName = "merge_run_duration_seconds"
	githubEventsMetricName     = "processed_github_events_total"
)

const (
	repositoryLabel = "repository"
	resultLabel     = "result"
)

type resultLabelVal string

const (
	resultLabelSuccessVal resultLabelVal = "success"
	resultLabelFailureVal resultLabelVal = "failure"
)

type metricCollector struct {
	logger          *zap.Logger
	mergeRuns       *prometheus.CounterVec
	mergeDuration   *prometheus.HistogramVec
	processedEvents prometheus.Counter
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		mergeRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      mergeRunsMetricName,
				Help:      "count of merge runs by result",
			},
			[]string{repositoryLabel, resultLabel},
		),
		mergeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      mergeRunDurationMetricName,
				Help:      "duration of merge runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{repositoryLabel},
		),
		processedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      githubEventsMetricName,
				Help:      "count of processed github webhook events",
			},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		zap.Error(err),
	)
}

func (m *metricCollector) MergeRunInc(repo *Repository, success bool) {
	result := resultLabelFailureVal
	if success {
		result = resultLabelSuccessVal
	}

	cnt, err := m.mergeRuns.GetMetricWith(prometheus.Labels{
		repositoryLabel: repo.String(),
		resultLabel:     string(result),
	})
	if err != nil {
		m.logGetMetricFailed(mergeRunsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) MergeRunDurationObserve(repo *Repository, duration time.Duration) {
	obs, err := m.mergeDuration.GetMetricWith(prometheus.Labels{
		repositoryLabel: repo.String(),
	})
	if err != nil {
		m.logGetMetricFailed(mergeRunDurationMetricName, err)
		return
	}

	obs.Observe(duration.Seconds())
}

func (m *metricCollector) ProcessedEventsInc() {
	m.processedEvents.Inc()
}
