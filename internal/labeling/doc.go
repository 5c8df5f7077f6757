// Package labeling turns one image file into labeled face records.
//
// A Labeler opens the image, finds face boxes (or uses the whole frame),
// crops each box and asks the vision model which accessories are present.
// It never writes output itself: records are returned to the dispatcher,
// which owns the CSV sink. Processing is a pure function of the file and the
// model, so re-running an item after a crash yields the same rows.
package labeling
