// Package task models the lifecycle of a server-executed OCR task as a client
// observes it. A Snapshot is one immutable, point-in-time view of a task; it is
// produced by a status query and replaced wholesale by the next one.
//
// Optional wire fields are pointers so that "absent" never collapses into a
// zero value: a missing progress total and a total of 0 mean different things.
package task
