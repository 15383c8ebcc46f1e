// Package logging builds the bridge's structured logger on log/slog.
//
// Every record carries service=litterbox and the build version. Packages
// that log take a small Logger interface (Debug/Info/Warn/Error), which
// *Logger satisfies, and receive a scoped logger from Component:
//
//	log := logging.New(cfg.Logging, version)
//	ctrl.SetLogger(log.Component("litterbox").With("iot_id", iotID))
//
// Output is JSON unless logging.format is "text", written to stdout or
// stderr per logging.output.
//
// The cloud password, iot token, JWT secret and API password hashes are
// never logged. The account name and iotId may be.
package logging
