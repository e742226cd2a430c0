package reconcile

// Diff accumulates the outcome counters of one reconciliation run. A run
// creates a fresh Diff and reports it at the end.
type Diff struct {
	// Found counts differences detected between configuration and backend.
	Found int `json:"found"`

	// Done counts differences resolved by a mutation. Dry-run never
	// increments it.
	Done int `json:"done"`

	// DataLoss counts differences whose resolution destroys stored values,
	// such as a column or table present only in the backend.
	DataLoss int `json:"data_loss"`
}

// Unresolved returns the number of differences that were found but not
// resolved. After a non-dry-run pass this should be zero; anything else
// must be surfaced to the operator.
func (d *Diff) Unresolved() int {
	return d.Found - d.Done
}

// add folds another diff into this one.
func (d *Diff) add(other Diff) {
	d.Found += other.Found
	d.Done += other.Done
	d.DataLoss += other.DataLoss
}
