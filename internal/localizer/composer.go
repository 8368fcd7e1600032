package localizer

// compose shapes a successful match into the engine's outputs: the
// vehicle-frame pose record, the sensor pose and transformed scan in
// the map frame, and the inverse transform for frame-aware consumers.
func (e *Engine) compose(s Scan, fitness float64, converged bool) {
	// map→vehicle = map→sensor ∘ (vehicle→sensor)⁻¹
	vehiclePose := e.currentPose.Mul(e.extrinsic.Inverse())
	x, y, z := vehiclePose.TranslationPart()
	yaw, pitch, roll := vehiclePose.EulerZYX()

	rec := PoseRecord{
		FrameIndex: e.frameIndex,
		X:          x, Y: y, Z: z,
		Yaw: yaw, Pitch: pitch, Roll: roll,
	}
	if e.out.Records != nil {
		if err := e.out.Records.Append(rec); err != nil {
			opsf("failed to append pose record %d: %v", rec.FrameIndex, err)
		}
	}

	if e.out.Poses != nil {
		sx, sy, sz := e.currentPose.TranslationPart()
		e.out.Poses.PublishPose(PoseStamped{
			Stamp:       s.Stamp,
			Frame:       e.cfg.MapFrame,
			X:           sx,
			Y:           sy,
			Z:           sz,
			Orientation: e.currentPose.RotationQuaternion(),
		})
	}

	if e.out.Clouds != nil {
		e.out.Clouds.PublishCloud(s.Stamp, e.cfg.MapFrame, s.Points.Transform(e.currentPose))
	}

	if e.out.Transforms != nil {
		e.out.Transforms.BroadcastTransform(s.Stamp, e.cfg.SensorFrame, e.cfg.MapFrame,
			e.currentPose.Inverse())
	}

	tracef("frame %d: vehicle pose (%.3f, %.3f, %.3f) ypr (%.4f, %.4f, %.4f) fitness %.6f converged=%v",
		rec.FrameIndex, x, y, z, yaw, pitch, roll, fitness, converged)
}
