// Package sheetforge implements the fork engine: an isolated, snapshot-based
// mutation subsystem that lets clients derive a private working copy of a
// spreadsheet workbook, apply batches of cell and style edits under
// optimistic concurrency control, take and restore named checkpoints, stage
// reversible changes, rebuild computed values via an external recalculator
// under a global concurrency cap, and commit the result back to the
// workspace.
//
// Concrete scratch-file handling lives in internal/guard, the streaming diff
// engine in internal/diffengine, and the .xlsx archive reader/writer in
// internal/workbook. This package wires them together behind the Fork
// Registry.
package sheetforge
