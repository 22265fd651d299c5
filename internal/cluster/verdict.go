package cluster

import (
	"time"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// Decision is the verdict outcome applied to downstream signals
type Decision struct {
	Verdict    models.Verdict
	Multiplier float64
	Cooling    time.Duration
	Intensity  float64
}

// ClassifyVerdict maps the four signals onto a verdict. Rules are
// evaluated in order and the first match wins; boundary values follow
// the inequalities exactly.
func ClassifyVerdict(s models.ClusterScores) Decision {
	switch {
	case s.Event.Matched && s.Event.Confidence > 0.7:
		return Decision{
			Verdict:    models.VerdictEmbargoEvent,
			Multiplier: 1.5,
		}

	case s.Diversity < 0.4 && s.Variety < 0.4 && s.Timing < -0.5:
		return Decision{
			Verdict:    models.VerdictManipulation,
			Multiplier: 0.0,
			Cooling:    24 * time.Hour,
			Intensity:  1.0,
		}

	case s.Timing < -0.6 || (s.Diversity < 0.5 && s.Variety < 0.5):
		return Decision{
			Verdict:    models.VerdictSuspiciousBurst,
			Multiplier: 0.3,
			Cooling:    30 * time.Minute,
			Intensity:  0.7,
		}

	case s.Diversity > 0.7 && s.Variety > 0.6:
		return Decision{
			Verdict:    models.VerdictOrganicConsensus,
			Multiplier: 1.2,
		}

	default:
		return Decision{
			Verdict:    models.VerdictViralTrend,
			Multiplier: 1.0,
		}
	}
}
