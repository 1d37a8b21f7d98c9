package api

// Envelope wraps every JSON/CBOR body the server renders.
// Exactly one of Data and Error is non-nil.
type Envelope[T any] struct {
	Data  *T         `json:"data"`
	Meta  Meta       `json:"meta"`
	Error *ErrorBody `json:"error"`
}

// Meta holds cross-cutting metadata.
type Meta struct {
	TraceID *string `json:"traceId,omitempty"`
}

// ErrorBody describes a failure with a stable machine-readable code.
type ErrorBody struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldIssue `json:"details,omitempty"`
	TraceID *string      `json:"traceId,omitempty"`
}

// FieldIssue gives field-level or contextual error information.
type FieldIssue struct {
	Field string `json:"field,omitempty"`
	Issue string `json:"issue"`
}

// NewSuccessEnvelope stores a copy of data.
func NewSuccessEnvelope[T any](traceID *string, data T) Envelope[T] {
	return Envelope[T]{
		Data: &data,
		Meta: Meta{TraceID: traceID},
	}
}

// NewErrorEnvelope builds an envelope with no data. details is copied.
func NewErrorEnvelope[T any](traceID *string, code, msg string, details []FieldIssue) Envelope[T] {
	var cloned []FieldIssue
	if len(details) > 0 {
		cloned = append([]FieldIssue(nil), details...)
	}
	return Envelope[T]{
		Meta: Meta{TraceID: traceID},
		Error: &ErrorBody{
			Code:    code,
			Message: msg,
			Details: cloned,
			TraceID: traceID,
		},
	}
}
