package tasks

// SchedulerInterface defines the interface for cycle scheduling
// operations. Used by the main application to run the background
// monitoring loop and by the API layer to report scheduler health.
type SchedulerInterface interface {
	Start()
	Stop()
	RunCycle() bool
	DroppedTicks() int64
}
