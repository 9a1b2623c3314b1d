package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type appMetrics struct {
	height          prometheus.Gauge
	blockTxs        prometheus.Histogram
	txsTotal        *prometheus.CounterVec
	txFailures      *prometheus.CounterVec
	checkTxRejected prometheus.Counter
	treasuryBalance prometheus.Gauge
	insurancePool   prometheus.Gauge
	activeProjects  prometheus.Gauge
	totalStaked     prometheus.Gauge
	rewardPool      prometheus.Gauge
	proposals       prometheus.Gauge
}

func (m *appMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.height = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_block_height",
		Help: "height of the last committed block",
	})
	m.blockTxs = promautoFactory.NewHistogram(prometheus.HistogramOpts{
		Name:    "dao_block_txs",
		Help:    "transactions per executed block",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	m.txsTotal = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "dao_txs_total",
		Help: "executed transactions by kind",
	}, []string{"kind"})
	m.txFailures = promautoFactory.NewCounterVec(prometheus.CounterOpts{
		Name: "dao_tx_failures_total",
		Help: "failed transactions by result code",
	}, []string{"code"})
	m.checkTxRejected = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "dao_checktx_rejected_total",
		Help: "transactions rejected at mempool admission",
	})
	m.treasuryBalance = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_treasury_balance",
		Help: "treasury balance including committed funds",
	})
	m.insurancePool = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_treasury_insurance_pool",
		Help: "insurance pool balance",
	})
	m.activeProjects = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_treasury_active_projects",
		Help: "number of active projects",
	})
	m.totalStaked = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_staking_total_principal",
		Help: "total staked principal",
	})
	m.rewardPool = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_staking_reward_pool",
		Help: "undistributed staking rewards",
	})
	m.proposals = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "dao_governance_proposals",
		Help: "proposals ever created",
	})
}

// observe records the committed state.
func (m *appMetrics) observe(s *State) {
	m.height.Set(float64(s.Height))
	m.treasuryBalance.Set(float64(s.Treasury.Balance))
	m.insurancePool.Set(float64(s.Treasury.InsurancePool))
	m.activeProjects.Set(float64(len(s.Treasury.Active)))
	m.totalStaked.Set(float64(s.Staking.TotalPrincipal))
	m.rewardPool.Set(float64(s.Staking.Undistributed))
	m.proposals.Set(float64(len(s.Governance.Proposals)))
}
