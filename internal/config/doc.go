// Package config defines the storyline configuration structure, its
// defaults and validation.
//
// Values are loaded by internal/infra/confloader; this package only knows
// the shape.
package config
