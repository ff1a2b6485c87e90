package audit

import "valuebridge/internal/model"

// Sink records finished settlement runs for operators. Sinks must be safe
// for concurrent use; a sink failure never fails the run that produced the
// record.
type Sink interface {
	Record(record model.RunRecord) error
}

// Discard drops all records.
type Discard struct{}

func (Discard) Record(model.RunRecord) error { return nil }
