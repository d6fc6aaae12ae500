// Package workflow drives a design-similarity conversation.
//
// An image session runs until it needs the user to pick one of the similar
// designs, checkpoints its state and returns. ResumeWithSelection loads the
// checkpoint and finishes with a detailed comparison and an FTO report.
// A text session answers one question per call and keeps the history so the
// same session can be continued.
package workflow
