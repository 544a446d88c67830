// Package ui renders the one-shot terminal output of wifiportal-cfg.
//
// Commands print a header naming the operation and its target, then either
// a table, a step list while a save is in flight, or a result box. Output
// goes through a Printer so commands can be pointed at any writer; nothing
// here reads the keyboard except Confirm.
//
// The live, interactive view of a portal lives in package monitor.
//
// Logging is silent unless WIFIPORTAL_LOG_LEVEL is set, so zap output never
// interleaves with the styled boxes.
package ui
