package importapi

// State is a step of the remote import sequence, or a data source state reported by
// the service while polling.
type State string

const (
	StateCreated       State = "Created"
	StateRdoConfigured State = "RdoConfigured"
	StateSourceAdded   State = "SourceAdded"
	StateBegun         State = "Begun"
	StateEnded         State = "Ended"
	StatePolling       State = "Polling"

	StateCompleted           State = "Completed"
	StateCompletedWithErrors State = "CompletedWithItemErrors"
	StateFailed              State = "Failed"
	// StateTimedOut is local: polling gave up while the remote import kept running.
	StateTimedOut State = "TimedOut"
)

// Terminal reports whether the remote service will not move the data source further.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCompletedWithErrors, StateFailed:
		return true
	}
	return false
}
