package temporal

import "time"

// TaskQueueName is the default Temporal task queue for import drain workflows.
const TaskQueueName = "LINKDOC_IMPORT_TASK_QUEUE"

// DrainWorkflowID identifies the single cron workflow that drains the queue.
const DrainWorkflowID = "linkdoc-import-drain"

// DefaultActivityTimeout bounds one job run, remote polling included.
const DefaultActivityTimeout = 45 * time.Minute

// HeartbeatInterval is how often a running job reports liveness.
const HeartbeatInterval = 15 * time.Second

// DrainParams defines the input for the drain workflow.
type DrainParams struct {
	WorkerID  string
	BatchSize int
}

// DrainResult reports what one drain pass did.
type DrainResult struct {
	Processed int
	Outcomes  []string
}
