package events

// CycleCreatedPayload is published once a cycle's ten matches are persisted
// in the DB, before on-chain submission.
type CycleCreatedPayload struct {
	CycleID    int64
	FixtureIDs [10]string
}

// CyclePublishedPayload is published once a cycle's creation transaction is
// confirmed on-chain.
type CyclePublishedPayload struct {
	CycleID int64
	TxHash  string
}

// CycleResolvedPayload is published once a cycle's results are submitted
// on-chain.
type CycleResolvedPayload struct {
	CycleID int64
	TxHash  string
}

// SlipPlacedPayload is published once a slip's placement transaction is
// confirmed.
type SlipPlacedPayload struct {
	CycleID int64
	SlipID  int64
	Player  string
	TxHash  string
}

// SlipEvaluatedPayload is published once a slip's score and correct count
// are computed.
type SlipEvaluatedPayload struct {
	CycleID      int64
	SlipID       int64
	CorrectCount int
	FinalScore   uint64
}

// CycleSyncIssuePayload is published when the DB's current cycle id
// disagrees with the chain's.
type CycleSyncIssuePayload struct {
	CycleID int64
	ChainID int64
}

// AlertRaisedPayload mirrors a domain.Alert's severity (as a string),
// message and details without importing the domain package, keeping the
// event bus dependency-free.
type AlertRaisedPayload struct {
	Severity string
	Message  string
	Details  map[string]any
}
