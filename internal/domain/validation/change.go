package validation

// ChangeKind classifies a single store mutation
type ChangeKind string

const (
	ChangeAdded      ChangeKind = "added"
	ChangeRemoved    ChangeKind = "removed"
	ChangeUpdated    ChangeKind = "updated"
	ChangeProcessing ChangeKind = "processing"
	ChangeReleased   ChangeKind = "released"
)

// RemovalReason explains why an id left the pending set
type RemovalReason string

const (
	RemovalProcessed       RemovalReason = "processed"
	RemovalCancelled       RemovalReason = "cancelled"
	RemovalSnapshotOmitted RemovalReason = "snapshot_omitted"
)

// Terminal maps a removal reason to the terminal estado it implies
func (r RemovalReason) Terminal() Estado {
	if r == RemovalCancelled {
		return EstadoCancelled
	}
	// processed covers both approval and rejection; the server does not say which
	return EstadoApproved
}

// Source names where a mutation came from
type Source string

const (
	SourcePush    Source = "push"
	SourcePoll    Source = "poll"
	SourceCommand Source = "command"
)

// Change is a single mutation of one id
type Change struct {
	Kind    ChangeKind        `json:"kind"`
	ID      ID                `json:"id"`
	Request ValidationRequest `json:"request"`
	Reason  RemovalReason     `json:"reason,omitempty"`
}

// ChangeSet groups the mutations produced by one reconciliation call.
// Listeners receive change sets in revision order.
type ChangeSet struct {
	Revision  uint64   `json:"revision"`
	Source    Source   `json:"source"`
	PrevCount int      `json:"prev_count"`
	Count     int      `json:"count"`
	Changes   []Change `json:"changes"`
}

// Added returns the requests first observed in this change set
func (cs ChangeSet) Added() []ValidationRequest {
	var out []ValidationRequest
	for _, c := range cs.Changes {
		if c.Kind == ChangeAdded {
			out = append(out, c.Request)
		}
	}
	return out
}

// Removed returns the removals in this change set
func (cs ChangeSet) Removed() []Change {
	var out []Change
	for _, c := range cs.Changes {
		if c.Kind == ChangeRemoved {
			out = append(out, c)
		}
	}
	return out
}
