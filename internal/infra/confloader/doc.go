// Package confloader loads storyline configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults already present in the target struct
//  2. A YAML file
//  3. Overrides passed as a map (command-line flags)
//  4. STORYLINE_* environment variables
//
// Environment keys use a double underscore between sections so that
// single underscores can stay inside key names:
// STORYLINE_SAVES__WARN_DELETE=false sets saves.warn_delete.
//
// Watcher reports writes to watched files so long-running commands can
// reload their configuration.
package confloader
