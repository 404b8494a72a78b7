/*
Package log provides structured logging for strata using zerolog.

All packages log through a single global Logger, initialized once via
log.Init(). Context loggers (WithComponent, WithSubstore, WithVersion)
attach fields relevant to the storage engine without repeating them at
every call site.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	commitLog := log.WithComponent("commit").With().Uint64("version", uint64(v)).Logger()
	commitLog.Info().Msg("committed")
*/
package log
