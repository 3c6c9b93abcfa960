package reconcile

// RowOutcome is the result of applying one row: exactly one of applied, skipped or failed.
type RowOutcome struct {
	Status   ApplyStatus
	Reason   string
	Error    string
	Response map[string]any
}

func Applied(response map[string]any) RowOutcome {
	return RowOutcome{Status: ApplyApplied, Response: response}
}

func Skipped(reason string) RowOutcome {
	return RowOutcome{Status: ApplySkipped, Reason: reason}
}

func Failed(err string) RowOutcome {
	return RowOutcome{Status: ApplyFailed, Error: err}
}

// Result is the apply_result payload persisted with the row.
func (o RowOutcome) Result() map[string]any {
	out := map[string]any{}
	switch o.Status {
	case ApplyApplied:
		if o.Response != nil {
			out["response"] = o.Response
		}
	case ApplySkipped:
		out["reason"] = o.Reason
	case ApplyFailed:
		out["error"] = o.Error
	}
	return out
}
