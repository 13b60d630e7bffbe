package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miretskiy/rrsched/simulator"
)

// promMetrics holds the scheduler gauges exported on /metrics
type promMetrics struct {
	clock           prometheus.Gauge
	ticks           prometheus.Gauge
	readyQueueLen   prometheus.Gauge
	ioQueueLen      prometheus.Gauge
	completed       prometheus.Gauge
	promotions      prometheus.Gauge
	cpuUtil         prometheus.Gauge
	avgTurnaround   prometheus.Gauge
	avgWaiting      prometheus.Gauge
	batchRuns       prometheus.Counter
	batchRunsFailed prometheus.Counter
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		clock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_virtual_time",
			Help: "Simulation clock of the live simulation",
		}),
		ticks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_ticks",
			Help: "Scheduling rounds run by the live simulation",
		}),
		readyQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_ready_queue_length",
			Help: "Processes on the ready queue",
		}),
		ioQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_io_queue_length",
			Help: "Processes on the I/O queue",
		}),
		completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_completed_processes",
			Help: "Processes that have completed",
		}),
		promotions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_promotions",
			Help: "Aging promotions applied so far",
		}),
		cpuUtil: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_cpu_utilization_percent",
			Help: "Share of the clock spent running dispatched processes",
		}),
		avgTurnaround: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_avg_turnaround_time",
			Help: "Average turnaround time of completed processes",
		}),
		avgWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rrsched_avg_waiting_time",
			Help: "Average waiting time of completed processes",
		}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rrsched_batch_runs_total",
			Help: "Batch simulations served by /api/simulate",
		}),
		batchRunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rrsched_batch_runs_failed_total",
			Help: "Batch simulations that aborted or were rejected",
		}),
	}
}

func (p *promMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		p.clock,
		p.ticks,
		p.readyQueueLen,
		p.ioQueueLen,
		p.completed,
		p.promotions,
		p.cpuUtil,
		p.avgTurnaround,
		p.avgWaiting,
		p.batchRuns,
		p.batchRunsFailed,
	)
}

func (p *promMetrics) update(metrics *simulator.Metrics) {
	p.clock.Set(float64(metrics.Timestamp))
	p.ticks.Set(float64(metrics.Ticks))
	p.readyQueueLen.Set(float64(metrics.ReadyQueueLength))
	p.ioQueueLen.Set(float64(metrics.IOQueueLength))
	p.completed.Set(float64(metrics.CompletedProcesses))
	p.promotions.Set(float64(metrics.TotalPromotions))
	p.cpuUtil.Set(metrics.CPUUtilizationPercent)
	p.avgTurnaround.Set(metrics.AvgTurnaroundTime)
	p.avgWaiting.Set(metrics.AvgWaitingTime)
}
