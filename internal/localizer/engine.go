// Package localizer estimates a vehicle's pose in a pre-built map by
// aligning live lidar scans against the map with iterative registration,
// seeded once from a coarse external position fix.
//
// The engine owns all mutable state from a single goroutine (Run); map,
// fix and scan deliveries arrive over channels, so there are no shared
// mutable fields to race on. Map and fix use last-value-wins delivery;
// scans are handed over synchronously and processed one at a time, which
// is the backpressure mechanism by design.
package localizer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/geom"
	"github.com/banshee-data/mapalign/internal/timeutil"
)

// ErrNotReady is reported when a scan had to be dropped because the map
// or the first position fix did not arrive within the readiness timeout.
var ErrNotReady = errors.New("localizer: map or position fix not ready")

// Fix is a coarse external position estimate (no orientation).
type Fix struct {
	X, Y, Z float64
	Stamp   time.Time
}

// Scan is one sensor sweep in the sensor frame.
type Scan struct {
	Stamp  time.Time
	Points cloud.Cloud
}

// PoseStamped is a position + orientation in a named frame.
type PoseStamped struct {
	Stamp       time.Time
	Frame       string
	X, Y, Z     float64
	Orientation geom.Quaternion
}

// PoseRecord is one row of the persisted result log: the vehicle-frame
// pose of a processed scan, angles in radians under the intrinsic
// Z-Y-X (yaw, pitch, roll) decomposition.
type PoseRecord struct {
	FrameIndex       int
	X, Y, Z          float64
	Yaw, Pitch, Roll float64
}

// PosePublisher receives the per-scan sensor pose in the map frame.
type PosePublisher interface {
	PublishPose(PoseStamped)
}

// CloudPublisher receives each scan re-expressed in the map frame.
type CloudPublisher interface {
	PublishCloud(stamp time.Time, frame string, c cloud.Cloud)
}

// TransformBroadcaster receives the map↔sensor frame relation for each
// processed scan.
type TransformBroadcaster interface {
	BroadcastTransform(stamp time.Time, fromFrame, toFrame string, t geom.Transform)
}

// RecordSink persists pose records (CSV log, database, ...).
type RecordSink interface {
	Append(PoseRecord) error
}

// Outputs collects the engine's sinks. Any nil sink is skipped.
type Outputs struct {
	Poses      PosePublisher
	Clouds     CloudPublisher
	Transforms TransformBroadcaster
	Records    RecordSink
}

// TrackerSnapshot is a point-in-time copy of the tracker state for
// observability (status endpoint, tests).
type TrackerSnapshot struct {
	MapReady          bool    `json:"map_ready"`
	FixReady          bool    `json:"fix_ready"`
	Initialized       bool    `json:"initialized"`
	FrameIndex        int     `json:"frame_index"`
	CumulativeFitness float64 `json:"cumulative_fitness"`
	LastFitness       float64 `json:"last_fitness"`
	DroppedScans      int     `json:"dropped_scans"`
}

// Engine is the localization engine. Construct with New, feed with
// SetMap/SetFix/SubmitScan, and drive with Run.
type Engine struct {
	cfg       Config
	extrinsic geom.Transform // vehicle→sensor
	out       Outputs
	clock     timeutil.Clock

	mapCh  chan cloud.Cloud
	fixCh  chan Fix
	scanCh chan Scan

	// State below is owned by the Run goroutine.
	mapIndex          *cloud.Index
	mapReady          bool
	fixReady          bool
	initialized       bool
	bootstrapped      bool
	currentPose       geom.Transform // map→sensor
	lastFix           Fix
	frameIndex        int
	cumulativeFitness float64

	mu   sync.Mutex
	snap TrackerSnapshot
}

// New validates the configuration and constructs an engine. An invalid
// configuration (malformed extrinsic, empty sweep) is fatal here rather
// than surfacing mid-run.
func New(cfg Config, out Outputs) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.WaitReportInterval <= 0 {
		cfg.WaitReportInterval = time.Second
	}
	return &Engine{
		cfg:         cfg,
		extrinsic:   cfg.Extrinsic(),
		out:         out,
		clock:       timeutil.RealClock{},
		mapCh:       make(chan cloud.Cloud, 1),
		fixCh:       make(chan Fix, 1),
		scanCh:      make(chan Scan),
		currentPose: geom.Identity(),
	}, nil
}

// SetClock replaces the engine's clock. Must be called before Run;
// tests use a mock clock to drive the readiness timeout without real
// sleeps.
func (e *Engine) SetClock(c timeutil.Clock) {
	e.clock = c
}

// SetMap delivers a reference map. Last value wins: an undelivered
// previous map is replaced, never queued.
func (e *Engine) SetMap(c cloud.Cloud) {
	for {
		select {
		case e.mapCh <- c:
			return
		default:
			select {
			case <-e.mapCh:
			default:
			}
		}
	}
}

// SetFix delivers a position fix. Last value wins.
func (e *Engine) SetFix(f Fix) {
	for {
		select {
		case e.fixCh <- f:
			return
		default:
			select {
			case <-e.fixCh:
			default:
			}
		}
	}
}

// SubmitScan hands a scan to the engine, blocking until the engine
// accepts it or ctx is done. The engine processes one scan at a time;
// callers that cannot block are expected to drop scans themselves.
func (e *Engine) SubmitScan(ctx context.Context, s Scan) error {
	select {
	case e.scanCh <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current tracker state.
func (e *Engine) Snapshot() TrackerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *Engine) publishSnapshot(lastFitness float64) {
	e.mu.Lock()
	e.snap.MapReady = e.mapReady
	e.snap.FixReady = e.fixReady
	e.snap.Initialized = e.initialized
	e.snap.FrameIndex = e.frameIndex
	e.snap.CumulativeFitness = e.cumulativeFitness
	if lastFitness >= 0 {
		e.snap.LastFitness = lastFitness
	}
	e.mu.Unlock()
}

// Run processes deliveries until ctx is done, then reports the
// cumulative fitness score. It must be called exactly once.
func (e *Engine) Run(ctx context.Context) error {
	diagf("engine started (map frame %q, sensor frame %q)", e.cfg.MapFrame, e.cfg.SensorFrame)
	for {
		select {
		case <-ctx.Done():
			opsf("shutting down after %d scans, cumulative fitness %.6f", e.frameIndex, e.cumulativeFitness)
			return ctx.Err()
		case m := <-e.mapCh:
			e.handleMap(m)
		case f := <-e.fixCh:
			e.handleFix(f)
		case s := <-e.scanCh:
			e.handleScan(ctx, s)
		}
	}
}

func (e *Engine) handleMap(m cloud.Cloud) {
	ds := cloud.Downsample(m, e.cfg.MapLeafSize)
	e.mapIndex = cloud.NewIndex(ds, e.cfg.SearchCorrespondenceDistance)
	if !e.mapReady {
		e.mapReady = true
		diagf("reference map ready: %d points (%d after %.2fm downsample)", len(m), len(ds), e.cfg.MapLeafSize)
	} else {
		diagf("reference map replaced: %d points", len(m))
	}
	e.publishSnapshot(-1)
}

func (e *Engine) handleFix(f Fix) {
	e.lastFix = f
	if !e.fixReady {
		e.fixReady = true
		diagf("first position fix at (%.2f, %.2f, %.2f)", f.X, f.Y, f.Z)
	}
	// One-time bootstrap pose so external consumers can render an
	// approximate position before the first scan is matched.
	if !e.initialized && !e.bootstrapped {
		e.bootstrapped = true
		if e.out.Poses != nil {
			e.out.Poses.PublishPose(PoseStamped{
				Stamp:       f.Stamp,
				Frame:       e.cfg.MapFrame,
				X:           f.X,
				Y:           f.Y,
				Z:           f.Z,
				Orientation: geom.Quaternion{W: 1},
			})
		}
		if e.out.Transforms != nil {
			e.out.Transforms.BroadcastTransform(f.Stamp, e.cfg.MapFrame, e.cfg.SensorFrame,
				geom.Translation(f.X, f.Y, f.Z))
		}
	}
	e.publishSnapshot(-1)
}

// waitUntilReady blocks until both the map and a fix have arrived,
// consuming deliveries as they come in. It reports the missing inputs
// periodically and gives up after the configured readiness timeout.
func (e *Engine) waitUntilReady(ctx context.Context) error {
	if e.mapReady && e.fixReady {
		return nil
	}

	var timeout <-chan time.Time
	if e.cfg.ReadinessTimeout > 0 {
		timer := e.clock.NewTimer(e.cfg.ReadinessTimeout)
		defer timer.Stop()
		timeout = timer.C()
	}
	ticker := e.clock.NewTicker(e.cfg.WaitReportInterval)
	defer ticker.Stop()

	for !(e.mapReady && e.fixReady) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrNotReady
		case <-ticker.C():
			if !e.mapReady {
				diagf("waiting for map data ...")
			}
			if !e.fixReady {
				diagf("waiting for position fix ...")
			}
		case m := <-e.mapCh:
			e.handleMap(m)
		case f := <-e.fixCh:
			e.handleFix(f)
		}
	}
	return nil
}

func (e *Engine) handleScan(ctx context.Context, s Scan) {
	if err := e.waitUntilReady(ctx); err != nil {
		if errors.Is(err, ErrNotReady) {
			opsf("dropping scan: %v", err)
			e.mu.Lock()
			e.snap.DroppedScans++
			e.mu.Unlock()
		}
		return
	}

	scanDs := cloud.Downsample(s.Points, e.cfg.ScanLeafSize)
	if len(scanDs) == 0 {
		opsf("dropping empty scan")
		e.mu.Lock()
		e.snap.DroppedScans++
		e.mu.Unlock()
		return
	}

	if !e.initialized {
		if err := e.runInitialSearch(scanDs); err != nil {
			opsf("initial pose search failed, dropping scan: %v", err)
			e.mu.Lock()
			e.snap.DroppedScans++
			e.mu.Unlock()
			return
		}
	}

	res, err := e.matchScan(scanDs)
	if err != nil {
		opsf("scan registration failed, keeping previous pose: %v", err)
		e.mu.Lock()
		e.snap.DroppedScans++
		e.mu.Unlock()
		return
	}

	e.currentPose = res.Transform
	e.cumulativeFitness += res.Fitness
	e.frameIndex++

	e.compose(s, res.Fitness, res.Converged)
	e.publishSnapshot(res.Fitness)
}
