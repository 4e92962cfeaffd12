// Package logging builds the slog logger both binaries use, from the logging
// section of the config.
package logging
