package enum

type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

func (t BatchStatus) String() string {
	return string(t)
}

type CircuitStatus string

const (
	CircuitClosed CircuitStatus = "closed"
	CircuitOpen   CircuitStatus = "open"
)

func (t CircuitStatus) String() string {
	return string(t)
}
