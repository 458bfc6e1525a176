package detector

import (
	"github.com/pratik-mahalle/costlens/internal/config"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// Config tunes the detection pipeline. Zero values are replaced by defaults.
type Config struct {
	DefaultMethod    anomaly.Method
	DefaultThreshold float64

	// MinPoints is the smallest series any detection runs on
	MinPoints int
	// ContextMinPoints is the smallest series root cause analysis runs on
	ContextMinPoints int

	IsolationMinPoints     int
	DensityMinPoints       int
	DecompositionMinPoints int

	IsolationTrees      int
	IsolationSampleSize int
	IsolationSeed       int64

	DensityNeighborRatio float64
	DensityMinNeighbors  int

	SeasonalityThreshold float64
	SeasonalPeriods      []int

	// PatternWindow is the number of points compared on each side of an anomaly
	PatternWindow int

	Parallel bool
}

// DefaultConfig returns the standard detection settings
func DefaultConfig() Config {
	return Config{
		DefaultMethod:          anomaly.MethodEnsemble,
		DefaultThreshold:       2.5,
		MinPoints:              5,
		ContextMinPoints:       7,
		IsolationMinPoints:     10,
		DensityMinPoints:       10,
		DecompositionMinPoints: 14,
		IsolationTrees:         100,
		IsolationSampleSize:    256,
		IsolationSeed:          42,
		DensityNeighborRatio:   0.05,
		DensityMinNeighbors:    3,
		SeasonalityThreshold:   0.3,
		SeasonalPeriods:        []int{7, 30},
		PatternWindow:          3,
		Parallel:               true,
	}
}

// ConfigFrom maps application settings onto detector settings
func ConfigFrom(c config.AnomalyConfig) Config {
	cfg := DefaultConfig()
	cfg.DefaultMethod = anomaly.Method(c.DefaultMethod)
	cfg.DefaultThreshold = c.DefaultThreshold
	cfg.MinPoints = c.MinPoints
	cfg.ContextMinPoints = c.ContextMinPoints
	cfg.IsolationTrees = c.IsolationTrees
	cfg.IsolationSampleSize = c.IsolationSampleSize
	cfg.IsolationSeed = c.IsolationSeed
	cfg.DensityNeighborRatio = c.DensityNeighborRatio
	cfg.DensityMinNeighbors = c.DensityMinNeighbors
	cfg.SeasonalityThreshold = c.SeasonalityThreshold
	cfg.Parallel = c.Parallel
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if !c.DefaultMethod.IsValid() {
		c.DefaultMethod = def.DefaultMethod
	}
	if c.DefaultThreshold <= 0 {
		c.DefaultThreshold = def.DefaultThreshold
	}
	if c.MinPoints <= 0 {
		c.MinPoints = def.MinPoints
	}
	if c.ContextMinPoints <= 0 {
		c.ContextMinPoints = def.ContextMinPoints
	}
	if c.IsolationMinPoints <= 0 {
		c.IsolationMinPoints = def.IsolationMinPoints
	}
	if c.DensityMinPoints <= 0 {
		c.DensityMinPoints = def.DensityMinPoints
	}
	if c.DecompositionMinPoints <= 0 {
		c.DecompositionMinPoints = def.DecompositionMinPoints
	}
	if c.IsolationTrees <= 0 {
		c.IsolationTrees = def.IsolationTrees
	}
	if c.IsolationSampleSize <= 0 {
		c.IsolationSampleSize = def.IsolationSampleSize
	}
	if c.IsolationSeed == 0 {
		c.IsolationSeed = def.IsolationSeed
	}
	if c.DensityNeighborRatio <= 0 {
		c.DensityNeighborRatio = def.DensityNeighborRatio
	}
	if c.DensityMinNeighbors <= 0 {
		c.DensityMinNeighbors = def.DensityMinNeighbors
	}
	if c.SeasonalityThreshold <= 0 {
		c.SeasonalityThreshold = def.SeasonalityThreshold
	}
	if len(c.SeasonalPeriods) == 0 {
		c.SeasonalPeriods = def.SeasonalPeriods
	}
	if c.PatternWindow <= 0 {
		c.PatternWindow = def.PatternWindow
	}
	return c
}
