package orders

// RequestStatus is the client-visible state of one published request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "Pending"
	StatusRetrying  RequestStatus = "Retrying"
	StatusProcessed RequestStatus = "Processed"
	StatusFailed    RequestStatus = "Failed"
)

// Terminal reports whether no further transition is expected. Duplicate
// delivery after a late commit can still overwrite a terminal value.
func (s RequestStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRetrying, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// StatusRecord is published on the reply queue after every delivery attempt.
type StatusRecord struct {
	CorrelationID string        `json:"correlation_id"`
	Status        RequestStatus `json:"status"`
}
