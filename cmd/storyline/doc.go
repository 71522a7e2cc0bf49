// Package main provides the entry point for storyline.
//
// storyline works on the save stores of one story:
//
//   - Save slot inspection and editing (list, show, delete, clear, latest)
//   - Migration of legacy saves into the save database
//   - Save settings
//   - An interactive player that drives the history and saves from a prompt
//
// Usage:
//
//	storyline [global flags] command [flags] [args]
//	storyline -o json saves list
//	storyline --backend legacy play
package main
