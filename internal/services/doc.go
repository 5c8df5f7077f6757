// Package services defines shared utilities consumed by the labeling pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, batch IDs, and item paths for
//     logging and correlation.
//   - Structured error markers plus the Wrap helper that classify failures as
//     permanent (bad input, bad model answer) or worth retrying.
//
// Subpackages hold the clients for external services such as the vision model.
package services
