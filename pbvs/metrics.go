package pbvs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	streamOdometry         = "odometry"
	streamTargetPose       = "target_pose"
	streamTargetConfidence = "target_confidence"
	streamArmStatus        = "arm_status"
	streamGoal             = "goal"
)

// Metrics holds the Prometheus collectors for the controller.
//
// All methods are nil-safe so components can run without metrics in tests.
//
// Metrics:
//   - pbvs_samples_total{stream} - samples accepted per input stream
//   - pbvs_samples_dropped_total{stream} - malformed samples dropped
//   - pbvs_arm_submits_total{result} - arm gate outcomes (sent, suppressed, rejected)
//   - pbvs_phase_transitions_total{sequence,phase} - phases entered
//   - pbvs_goals_total{command,status} - finished goals
//   - pbvs_heading_radians - latest unwrapped heading
type Metrics struct {
	Samples          *prometheus.CounterVec
	DroppedSamples   *prometheus.CounterVec
	ArmSubmits       *prometheus.CounterVec
	PhaseTransitions *prometheus.CounterVec
	Goals            *prometheus.CounterVec
	Heading          prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Samples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pbvs_samples_total",
				Help: "Total number of input samples accepted",
			},
			[]string{"stream"},
		),
		DroppedSamples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pbvs_samples_dropped_total",
				Help: "Total number of malformed input samples dropped",
			},
			[]string{"stream"},
		),
		ArmSubmits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pbvs_arm_submits_total",
				Help: "Total number of arm commands submitted to the gate",
			},
			[]string{"result"},
		),
		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pbvs_phase_transitions_total",
				Help: "Total number of phases entered",
			},
			[]string{"sequence", "phase"},
		),
		Goals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pbvs_goals_total",
				Help: "Total number of finished goals",
			},
			[]string{"command", "status"},
		),
		Heading: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pbvs_heading_radians",
				Help: "Latest unwrapped platform heading",
			},
		),
	}
}

func (m *Metrics) sample(stream string) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(stream).Inc()
}

func (m *Metrics) dropped(stream string) {
	if m == nil {
		return
	}
	m.DroppedSamples.WithLabelValues(stream).Inc()
}

func (m *Metrics) armSubmit(result SubmitResult) {
	if m == nil {
		return
	}
	m.ArmSubmits.WithLabelValues(result.String()).Inc()
}

func (m *Metrics) transition(sequence, phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(sequence, phase).Inc()
}

func (m *Metrics) goal(command string, status GoalStatus) {
	if m == nil {
		return
	}
	m.Goals.WithLabelValues(command, status.String()).Inc()
}

func (m *Metrics) heading(theta float64) {
	if m == nil {
		return
	}
	m.Heading.Set(theta)
}
