package island

import "time"

// Config carries every per-island tunable a worker needs to run its step
// pipeline; every field except SolverIterations mirrors mailbox.Settings,
// which is how these values travel from the coordinator to a running
// worker after construction. SolverIterations is fixed when the worker is
// built.
type Config struct {
	FixedDt            time.Duration
	SleepLinearThresh   float64
	SleepAngularThresh  float64
	IslandTimeToSleep   time.Duration
	SplitDebounce       time.Duration
	MaxLaggingSteps     int
	SolverIterations    int
}

// DefaultConfig matches the reference values named across the scenario
// tests: a 60Hz fixed step, a 0.6s split debounce, and a lag clamp of 10
// steps.
func DefaultConfig() Config {
	return Config{
		FixedDt:            time.Second / 60,
		SleepLinearThresh:  0.01,
		SleepAngularThresh: 0.01,
		IslandTimeToSleep:  2 * time.Second,
		SplitDebounce:      600 * time.Millisecond,
		MaxLaggingSteps:    10,
		SolverIterations:   4,
	}
}
