// Package pattern detects repeating family patterns (divorce cycles,
// absences, addictions, secrets) by walking a genealogy snapshot from a root
// member and scoring the weighted evidence each catalog rule collects.
//
// The Engine is a pure function of its input. The Scheduler wraps it with a
// debounce and single-flight discipline so edits never cause two passes to
// run at the same time.
package pattern
