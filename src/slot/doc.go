// Package slot converts wall-clock time into slot numbers.
//
// Slot n covers [genesis + n*duration, genesis + (n+1)*duration). The Ticker
// emits a slot number every time the current slot increases; it never replays
// slots that were skipped while the process was asleep, only the latest one
// matters.
package slot
