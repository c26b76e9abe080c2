// Package transform defines the contract of an external push/pull transform
// and the Session that drives its type negotiation. The transform reports
// flow control through sentinel errors; Session splits those into tagged
// FeedOutcome and PullOutcome values so that only real failures travel as
// errors.
package transform
