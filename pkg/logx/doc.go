// Package logx configures delaykit's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Warn/error volume rate-limited (a misbehaving scheduled task can
//     otherwise produce a line on every firing)
package logx
