package domain

import "encoding/json"

// Record is one row returned by the database, keyed by column name.
type Record map[string]any

// Result is the envelope handed back by every query. Exactly one of Rows
// (multi mode) or Row (single modes) carries data; on failure both are
// empty and Error is set. Callers must check Error before trusting data.
type Result struct {
	Mode  ResultMode
	Rows  []Record
	Row   Record
	Count *int
	Error *Error
}

// Failed builds the envelope for a failed query.
func Failed(mode ResultMode, err error) *Result {
	return &Result{Mode: mode, Error: AsError(err)}
}

// Data returns the shaped payload: []Record in multi mode, Record or nil in
// the single modes, nil on error.
func (r *Result) Data() any {
	if r.Error != nil {
		return nil
	}
	if r.Mode == Single || r.Mode == MaybeSingle {
		if r.Row == nil {
			return nil
		}
		return r.Row
	}
	return r.Rows
}

// Err returns Error as an error value, or nil.
func (r *Result) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// MarshalJSON renders the envelope as {data, error[, count]}.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Mode == Single || r.Mode == MaybeSingle {
		return json.Marshal(struct {
			Data  any    `json:"data"`
			Error *Error `json:"error"`
		}{r.Data(), r.Error})
	}
	return json.Marshal(struct {
		Data  any    `json:"data"`
		Error *Error `json:"error"`
		Count *int   `json:"count"`
	}{r.Data(), r.Error, r.Count})
}
