package localizer

import (
	"fmt"

	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/geom"
	"github.com/banshee-data/mapalign/internal/register"
)

// runInitialSearch resolves the unknown initial heading. The external
// fix carries position only, so the engine sweeps candidate yaws,
// registers the first scan once per candidate with the coarse
// correspondence distance, and keeps the refined transform of the
// candidate with the strictly lowest fitness (earliest candidate wins
// ties). Runs exactly once; afterwards the engine is initialized.
func (e *Engine) runInitialSearch(scan cloud.Cloud) error {
	candidates := e.cfg.SweepCandidates()
	if len(candidates) == 0 {
		// Validate() rejects empty sweeps at startup; reaching this
		// means the config was bypassed.
		return &ConfigurationError{"sweep", "no candidate yaws"}
	}

	diagf("initial pose search: %d yaw candidates from fix (%.2f, %.2f, %.2f)",
		len(candidates), e.lastFix.X, e.lastFix.Y, e.lastFix.Z)

	var best *register.Result
	var bestYaw float64
	params := e.cfg.searchParams()
	translation := geom.Translation(e.lastFix.X, e.lastFix.Y, e.lastFix.Z)

	for _, yaw := range candidates {
		guess := translation.Mul(geom.RotationZ(yaw))
		res, err := register.Align(scan, e.mapIndex, guess, params)
		if err != nil {
			diagf("yaw candidate %.3f failed: %v", yaw, err)
			continue
		}
		tracef("yaw candidate %.3f: fitness %.6f (converged=%v)", yaw, res.Fitness, res.Converged)
		if best == nil || res.Fitness < best.Fitness {
			best = &res
			bestYaw = yaw
		}
	}
	if best == nil {
		return fmt.Errorf("all %d yaw candidates failed to register", len(candidates))
	}

	e.currentPose = best.Transform
	e.initialized = true
	diagf("initialized: best yaw candidate %.3f, fitness %.6f, pose %v", bestYaw, best.Fitness, best.Transform)
	e.publishSnapshot(-1)
	return nil
}
