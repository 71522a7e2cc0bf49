// Package shutdown runs cleanup hooks once, on a signal or on demand.
//
// The play command registers the engine close here so that SIGINT,
// SIGTERM and the REPL "quit" command all flush the session snapshot
// and release the save database the same way.
package shutdown
