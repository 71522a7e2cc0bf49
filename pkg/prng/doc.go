// Package prng provides a seeded, peekable pseudo-random number stream.
//
// The generator is fully deterministic given (seed, pull): pull counts how
// many values have been drawn and doubles as the replay position. Callers
// that persist the pull alongside their own state can rebuild the exact
// stream later by constructing a generator with the same seed and pull.
//
// Values are NOT suitable for cryptographic use.
//
// Seeds:
//
//   - number: must lie in [0.25, 1]
//   - string: reduced with Str2Int (average printable ASCII code)
//   - default: drawn from crypto/rand inside the valid range
//
// Usage:
//
//	g, _ := prng.New(0.5, 0)
//	next, _ := g.Peek(3) // does not advance
//	v := g.Random()      // equals next[0]
package prng
