package types

// FillEventType names an event a page dispatches while a field is written.
type FillEventType string

const (
	EventInput  FillEventType = "input"  // EventInput is dispatched after each value write.
	EventChange FillEventType = "change" // EventChange is dispatched once a write is committed.
)

// FillEvent is one dispatched page event.
type FillEvent struct {
	// Type indicates the kind of event.
	Type FillEventType

	// FieldIndex is the run index of the field written.
	FieldIndex int

	// Value is the field value after the write.
	Value string
}
