// Package command defines the storyline command line.
//
// Commands run in-process against the save database in the configured
// data directory: saves inspects and edits slots, migrate moves legacy
// saves into the database, settings manages save preferences and play
// drives a history interactively.
package command
