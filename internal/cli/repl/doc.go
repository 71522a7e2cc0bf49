// Package repl runs the line-oriented loop behind `storyline play`.
//
// The loop reads a line, splits it into words (double quotes group
// words), records it in the history and hands it to a Handler. Command
// semantics live with the caller.
package repl
