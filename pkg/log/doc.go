// Package log provides the logging abstraction used by walfp components.
//
// Components never import a logging library directly. They accept a Logger
// and emit typed fields; the CLI plugs in the zerolog adapter while tests and
// embedding programs usually pass NewNoopLogger.
//
// # Usage
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("dumped page", log.Uint32("block", 42), log.Stringer("lsn", lsn))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
