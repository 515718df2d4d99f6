// Package services holds the error taxonomy and context plumbing shared by
// every external adapter and the pipeline.
//
// Adapters tag failures with a sentinel marker at the point where the
// condition is detected. The pipeline decides retry eligibility purely from
// those markers; no component inspects error message text.
package services
