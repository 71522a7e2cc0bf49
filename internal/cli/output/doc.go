// Package output renders command results as a table, JSON or YAML.
//
// Tables are built from slices of structs: exported fields become columns
// named after their json tag. A `table:"wide"` tag hides a column unless
// wide output is requested, `table:"-"` always hides it.
package output
