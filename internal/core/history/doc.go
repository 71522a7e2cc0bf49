// Package history implements the moment/history state machine.
//
// A Machine keeps a linear stack of moments and an active-index cursor
// marking the present. Moments above the cursor form the redo buffer and
// are discarded when a new moment is created from a non-top position.
// The stack is capped at MaxStates; evicted moments leave their titles in a
// bounded expired list.
//
// The package also provides the pure helpers used to store a history:
// DeltaEncode/DeltaDecode for delta compression and Reduce for retention
// windowing. Truncation must happen before encoding, since every delta is
// relative to its immediate predecessor.
package history
