// Package logx configures orderbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured and size-rotated
//   - Sinks swappable at runtime via Service.Apply (config hot reload)
package logx
