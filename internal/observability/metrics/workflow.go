package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type workflowKey struct {
	domain string
	status string
}

type workflowStats struct {
	mu        sync.Mutex
	completed map[workflowKey]uint64
	duration  map[string]*histogram
}

var workflowCollector = &workflowStats{
	completed: make(map[workflowKey]uint64),
	duration:  make(map[string]*histogram),
}

// ObserveWorkflow records the outcome and duration of a workflow execution.
func ObserveWorkflow(domain, status string, duration time.Duration) {
	workflowCollector.observe(domain, status, duration)
}

func (w *workflowStats) observe(domain, status string, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.completed[workflowKey{domain: domain, status: status}]++
	hist := w.duration[domain]
	if hist == nil {
		hist = newHistogram()
		w.duration[domain] = hist
	}
	hist.observe(duration.Seconds())
}

func (w *workflowStats) render() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	type completedMetric struct {
		workflowKey
		value uint64
	}
	type durationMetric struct {
		domain  string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	completed := make([]completedMetric, 0, len(w.completed))
	for key, value := range w.completed {
		completed = append(completed, completedMetric{workflowKey: key, value: value})
	}
	durations := make([]durationMetric, 0, len(w.duration))
	for domain, hist := range w.duration {
		durations = append(durations, durationMetric{
			domain:  domain,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(completed, func(i, j int) bool {
		if completed[i].domain == completed[j].domain {
			return completed[i].status < completed[j].status
		}
		return completed[i].domain < completed[j].domain
	})
	sort.Slice(durations, func(i, j int) bool {
		return durations[i].domain < durations[j].domain
	})

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString("# HELP mcpf_workflow_runs_total Total number of workflow runs by domain and final status.\n")
	builder.WriteString("# TYPE mcpf_workflow_runs_total counter\n")
	for _, metric := range completed {
		builder.WriteString(fmt.Sprintf("mcpf_workflow_runs_total{domain=\"%s\",status=\"%s\"} %d\n",
			escape(metric.domain), escape(metric.status), metric.value))
	}

	builder.WriteString("# HELP mcpf_workflow_duration_seconds Workflow execution duration in seconds.\n")
	builder.WriteString("# TYPE mcpf_workflow_duration_seconds histogram\n")
	for _, metric := range durations {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("mcpf_workflow_duration_seconds_bucket{domain=\"%s\",le=\"%s\"} %d\n",
				escape(metric.domain), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("mcpf_workflow_duration_seconds_bucket{domain=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.domain), metric.count))
		builder.WriteString(fmt.Sprintf("mcpf_workflow_duration_seconds_sum{domain=\"%s\"} %s\n",
			escape(metric.domain), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("mcpf_workflow_duration_seconds_count{domain=\"%s\"} %d\n",
			escape(metric.domain), metric.count))
	}

	return builder.String()
}
