// Package logx configures commentwatch's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional remote sink (min-level + rate limiting) that forwards log lines
//     to the same place alerts go, so an unattended process can page its owner.
package logx
