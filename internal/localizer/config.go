package localizer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/mapalign/internal/geom"
	"github.com/banshee-data/mapalign/internal/register"
)

// ConfigurationError reports an invalid configuration value. It is fatal
// at startup: the engine refuses to construct rather than run with a
// broken extrinsic or an empty search sweep.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Config collects every tunable of the localization engine into one
// immutable value constructed at startup.
type Config struct {
	// SensorTranslation and SensorRotation describe the static
	// vehicle→sensor extrinsic: a translation triplet (meters) and an
	// orientation quaternion in (x, y, z, w) order.
	SensorTranslation []float64
	SensorRotation    []float64

	// Voxel leaf sizes (meters) applied to the reference map and to
	// each incoming scan before registration.
	MapLeafSize  float64
	ScanLeafSize float64

	// Frame identifiers for published poses and transform broadcasts.
	MapFrame    string
	SensorFrame string

	// ResultPath is where the per-scan pose log CSV is written.
	ResultPath string

	// Initial-orientation sweep: candidate yaws from SweepStartRad
	// (inclusive) to SweepEndRad (exclusive) at SweepStepRad intervals.
	SweepStartRad float64
	SweepEndRad   float64
	SweepStepRad  float64

	// Registration budgets. The initial search uses the coarse
	// correspondence distance, steady-state tracking the tight one;
	// iteration cap and epsilons are shared.
	SearchCorrespondenceDistance float64
	TrackCorrespondenceDistance  float64
	MaxIterations                int
	TransformationEpsilon        float64
	EuclideanFitnessEpsilon      float64

	// ReadinessTimeout bounds how long a scan waits for the map and
	// first fix before being dropped as not-ready. Zero waits forever.
	ReadinessTimeout time.Duration

	// WaitReportInterval is how often the engine reports which input it
	// is still waiting for.
	WaitReportInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SensorTranslation:            []float64{0, 0, 0},
		SensorRotation:               []float64{0, 0, 0, 1},
		MapLeafSize:                  0.3,
		ScanLeafSize:                 0.3,
		MapFrame:                     "world",
		SensorFrame:                  "nuscenes_lidar",
		ResultPath:                   "result.csv",
		SweepStartRad:                0,
		SweepEndRad:                  0.2,
		SweepStepRad:                 0.05,
		SearchCorrespondenceDistance: 2.0,
		TrackCorrespondenceDistance:  1.0,
		MaxIterations:                1000,
		TransformationEpsilon:        1e-8,
		EuclideanFitnessEpsilon:      1e-8,
		ReadinessTimeout:             30 * time.Second,
		WaitReportInterval:           time.Second,
	}
}

// Validate checks the configuration, returning a ConfigurationError for
// the first problem found.
func (c Config) Validate() error {
	if len(c.SensorTranslation) != 3 {
		return &ConfigurationError{"sensor_translation", fmt.Sprintf("need 3 elements, got %d", len(c.SensorTranslation))}
	}
	if len(c.SensorRotation) != 4 {
		return &ConfigurationError{"sensor_rotation", fmt.Sprintf("need 4 elements, got %d", len(c.SensorRotation))}
	}
	q := geom.Quaternion{X: c.SensorRotation[0], Y: c.SensorRotation[1], Z: c.SensorRotation[2], W: c.SensorRotation[3]}
	if q.Norm() == 0 {
		return &ConfigurationError{"sensor_rotation", "zero quaternion"}
	}
	if c.MapLeafSize < 0 || c.ScanLeafSize < 0 {
		return &ConfigurationError{"leaf_size", "must be non-negative"}
	}
	if c.SweepStepRad <= 0 {
		return &ConfigurationError{"sweep_step_rad", fmt.Sprintf("must be positive, got %v", c.SweepStepRad)}
	}
	if c.SweepEndRad <= c.SweepStartRad {
		return &ConfigurationError{"sweep_end_rad", "sweep range is empty"}
	}
	if c.SearchCorrespondenceDistance <= 0 || c.TrackCorrespondenceDistance <= 0 {
		return &ConfigurationError{"correspondence_distance", "must be positive"}
	}
	if c.MaxIterations <= 0 {
		return &ConfigurationError{"max_iterations", "must be positive"}
	}
	if c.ReadinessTimeout < 0 {
		return &ConfigurationError{"readiness_timeout", "must be non-negative"}
	}
	return nil
}

// Extrinsic returns the vehicle→sensor rigid transform.
func (c Config) Extrinsic() geom.Transform {
	q := geom.Quaternion{X: c.SensorRotation[0], Y: c.SensorRotation[1], Z: c.SensorRotation[2], W: c.SensorRotation[3]}
	return q.Transform(c.SensorTranslation[0], c.SensorTranslation[1], c.SensorTranslation[2])
}

// SweepCandidates enumerates the candidate yaws of the initial search.
func (c Config) SweepCandidates() []float64 {
	var yaws []float64
	for yaw := c.SweepStartRad; yaw < c.SweepEndRad; yaw += c.SweepStepRad {
		yaws = append(yaws, yaw)
	}
	return yaws
}

func (c Config) searchParams() register.Params {
	return register.Params{
		MaxCorrespondenceDistance: c.SearchCorrespondenceDistance,
		MaxIterations:             c.MaxIterations,
		TransformationEpsilon:     c.TransformationEpsilon,
		EuclideanFitnessEpsilon:   c.EuclideanFitnessEpsilon,
	}
}

func (c Config) trackParams() register.Params {
	p := c.searchParams()
	p.MaxCorrespondenceDistance = c.TrackCorrespondenceDistance
	return p
}

// fileConfig mirrors Config with optional JSON fields so a config file
// only overrides what it mentions; everything else keeps its default.
type fileConfig struct {
	SensorTranslation            []float64 `json:"sensor_translation,omitempty"`
	SensorRotation               []float64 `json:"sensor_rotation,omitempty"`
	MapLeafSize                  *float64  `json:"map_leaf_size,omitempty"`
	ScanLeafSize                 *float64  `json:"scan_leaf_size,omitempty"`
	MapFrame                     *string   `json:"map_frame,omitempty"`
	SensorFrame                  *string   `json:"sensor_frame,omitempty"`
	ResultPath                   *string   `json:"result_path,omitempty"`
	SweepStartRad                *float64  `json:"sweep_start_rad,omitempty"`
	SweepEndRad                  *float64  `json:"sweep_end_rad,omitempty"`
	SweepStepRad                 *float64  `json:"sweep_step_rad,omitempty"`
	SearchCorrespondenceDistance *float64  `json:"search_correspondence_distance,omitempty"`
	TrackCorrespondenceDistance  *float64  `json:"track_correspondence_distance,omitempty"`
	MaxIterations                *int      `json:"max_iterations,omitempty"`
	TransformationEpsilon        *float64  `json:"transformation_epsilon,omitempty"`
	EuclideanFitnessEpsilon      *float64  `json:"euclidean_fitness_epsilon,omitempty"`
	ReadinessTimeout             *string   `json:"readiness_timeout,omitempty"` // duration string like "30s"
	WaitReportInterval           *string   `json:"wait_report_interval,omitempty"`
}

// LoadConfig reads a JSON config file and applies it on top of the
// defaults. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %v", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %v", path, err)
	}

	if fc.SensorTranslation != nil {
		cfg.SensorTranslation = fc.SensorTranslation
	}
	if fc.SensorRotation != nil {
		cfg.SensorRotation = fc.SensorRotation
	}
	if fc.MapLeafSize != nil {
		cfg.MapLeafSize = *fc.MapLeafSize
	}
	if fc.ScanLeafSize != nil {
		cfg.ScanLeafSize = *fc.ScanLeafSize
	}
	if fc.MapFrame != nil {
		cfg.MapFrame = *fc.MapFrame
	}
	if fc.SensorFrame != nil {
		cfg.SensorFrame = *fc.SensorFrame
	}
	if fc.ResultPath != nil {
		cfg.ResultPath = *fc.ResultPath
	}
	if fc.SweepStartRad != nil {
		cfg.SweepStartRad = *fc.SweepStartRad
	}
	if fc.SweepEndRad != nil {
		cfg.SweepEndRad = *fc.SweepEndRad
	}
	if fc.SweepStepRad != nil {
		cfg.SweepStepRad = *fc.SweepStepRad
	}
	if fc.SearchCorrespondenceDistance != nil {
		cfg.SearchCorrespondenceDistance = *fc.SearchCorrespondenceDistance
	}
	if fc.TrackCorrespondenceDistance != nil {
		cfg.TrackCorrespondenceDistance = *fc.TrackCorrespondenceDistance
	}
	if fc.MaxIterations != nil {
		cfg.MaxIterations = *fc.MaxIterations
	}
	if fc.TransformationEpsilon != nil {
		cfg.TransformationEpsilon = *fc.TransformationEpsilon
	}
	if fc.EuclideanFitnessEpsilon != nil {
		cfg.EuclideanFitnessEpsilon = *fc.EuclideanFitnessEpsilon
	}
	if fc.ReadinessTimeout != nil {
		d, err := time.ParseDuration(*fc.ReadinessTimeout)
		if err != nil {
			return Config{}, &ConfigurationError{"readiness_timeout", err.Error()}
		}
		cfg.ReadinessTimeout = d
	}
	if fc.WaitReportInterval != nil {
		d, err := time.ParseDuration(*fc.WaitReportInterval)
		if err != nil {
			return Config{}, &ConfigurationError{"wait_report_interval", err.Error()}
		}
		cfg.WaitReportInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
