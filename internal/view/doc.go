// Package view derives presentation values from task snapshots: a clamped
// progress percent, a human elapsed-time label, absolute artifact locations
// and a combined Summary.
//
// Every function here is pure. Absent inputs produce explicit "absent"
// results (a false ok value or UnknownDuration) and never a zero that could
// be mistaken for real data.
package view
