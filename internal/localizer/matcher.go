package localizer

import (
	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/register"
)

// matchScan refines the current pose against the reference map using the
// downsampled scan, seeded by the previous pose (constant-pose warm
// start: inter-scan displacement is assumed small, so the tight
// correspondence distance applies). Exhausting the iteration budget is
// a soft failure: the best-effort transform is still used, visible only
// through the fitness score.
func (e *Engine) matchScan(scan cloud.Cloud) (register.Result, error) {
	res, err := register.Align(scan, e.mapIndex, e.currentPose, e.cfg.trackParams())
	if err != nil {
		return register.Result{}, err
	}
	if !res.Converged {
		diagf("registration hit iteration cap (%d), accepting best effort with fitness %.6f",
			res.Iterations, res.Fitness)
	}
	tracef("scan matched in %d iterations, fitness %.6f", res.Iterations, res.Fitness)
	return res, nil
}
