/*
Package pipeline defines the shared vocabulary of the archive pipeline: unit
identity, failure categories, and per-unit batch results.

Every stage (readers, selection, scale conversion, combination, output) fails
by returning an *Error carrying a Kind and the Unit being processed. The
batch runner is the only layer that converts errors into outcomes: it
classifies each failure with KindOf, records a Result, and continues with the
next unit. Errors therefore propagate unchanged through the stages and remain
matchable with errors.Is and errors.As at any depth of wrapping.

Sentinel matching uses zero-valued templates:

	if errors.Is(err, &pipeline.Error{Kind: pipeline.KindNotFound}) {
		// raw source missing or ambiguous
	}
*/
package pipeline
