package model

import "encoding/json"

// Confidence tags how a field value was established.
type Confidence string

const (
	// ConfidenceConfirmed marks a value backed by a definitive source marker
	// (finalized price label, registration record, audited statement).
	ConfidenceConfirmed Confidence = "confirmed"
	// ConfidenceEstimated marks a value derived from a provisional source,
	// like a price band or an unconfirmed schedule.
	ConfidenceEstimated Confidence = "estimated"
	// ConfidenceExtractionFailed marks a field whose extraction exhausted all
	// validation retries. The value is always absent.
	ConfidenceExtractionFailed Confidence = "extraction_failed"
)

// Source identifies which collector produced a value.
type Source string

const (
	SourceDART    Source = "dart"
	SourceCrawler Source = "crawler"
	SourceFiling  Source = "filing"
)

// Field wraps an extracted leaf value with its provenance. The JSON shape
// {value, source, confidence} is the contract the renderers depend on; a
// missing value serializes as null rather than being omitted.
type Field[T any] struct {
	Value      *T         `json:"value"`
	Source     Source     `json:"source,omitempty"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// Confirmed builds a present field with confirmed confidence.
func Confirmed[T any](v T, src Source) Field[T] {
	return Field[T]{Value: &v, Source: src, Confidence: ConfidenceConfirmed}
}

// Estimated builds a present field with estimated confidence.
func Estimated[T any](v T, src Source) Field[T] {
	return Field[T]{Value: &v, Source: src, Confidence: ConfidenceEstimated}
}

// Failed builds an absent field marked extraction_failed.
func Failed[T any](src Source) Field[T] {
	return Field[T]{Source: src, Confidence: ConfidenceExtractionFailed}
}

// Present reports whether the field carries a value.
func (f Field[T]) Present() bool {
	return f.Value != nil
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	if f.Value == nil {
		var zero T
		return zero, false
	}
	return *f.Value, true
}

// Or returns the value, or fallback when absent.
func (f Field[T]) Or(fallback T) T {
	if f.Value == nil {
		return fallback
	}
	return *f.Value
}

// MarshalJSON keeps the zero Field serializing as {"value":null} so absent
// leaves stay visible in the canonical document.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	type alias Field[T]
	return json.Marshal(alias(f))
}
