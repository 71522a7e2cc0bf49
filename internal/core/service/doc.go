// Package service provides the Engine, the coordinator tying the history
// machine, its PRNG, the session snapshot manager and the save store
// together.
//
// Every piece of mutable state lives in an Engine; independent engines
// share nothing, so tests can run several side by side. History changes
// reach the Engine through the machine's observer list and trigger an
// opportunistic session snapshot.
package service
