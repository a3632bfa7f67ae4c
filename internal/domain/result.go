package domain

// BulkResult aggregates per-session outcomes of one bulk run. Partial
// failure is the expected common case, so it is data, not an error.
type BulkResult struct {
	RunID     string
	Operation string
	Succeeded int
	Failed    int
	Revoked   []AccountID
}

// Attempted is the number of sessions the run accounted for, including the
// ones that were requested but no longer present in the registry.
func (r BulkResult) Attempted() int {
	return r.Succeeded + r.Failed
}
