// Package logger builds the storyline slog logger.
//
// Output is JSON or text on stderr. The level lives in a package-wide
// slog.LevelVar so the REPL and the config watcher can change it at
// runtime. The extra level "off" discards everything. Attributes whose
// key looks secret are redacted before they are written.
package logger
