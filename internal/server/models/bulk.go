package models

// BulkItemResult describes one successfully processed item of a bulk request.
type BulkItemResult struct {
	Index   int
	ID      string
	Version int64
	Status  string
}

// BulkItemError describes one failed item, referencing its position in the
// original request so callers can correlate outcomes.
type BulkItemError struct {
	Index   int
	ID      string
	Kind    string
	Message string
}

// BulkResult aggregates per-item outcomes of one bulk request. It is
// transient and never persisted.
type BulkResult struct {
	SuccessCount int
	ErrorCount   int
	Results      []BulkItemResult
	Errors       []BulkItemError
}

// Add appends a success entry and bumps the counter.
func (r *BulkResult) Add(res BulkItemResult) {
	r.Results = append(r.Results, res)
	r.SuccessCount++
}

// AddError appends a failure entry and bumps the counter.
func (r *BulkResult) AddError(e BulkItemError) {
	r.Errors = append(r.Errors, e)
	r.ErrorCount++
}
