// Package progression contains the experience model of the community: the
// level curve, the per-user progress record, the daily mission record, the
// attendance record and the level-to-role tier table.
//
// Records are plain values loaded from and saved to the document store with
// get-then-put semantics. Two writers updating the same user concurrently can
// lose one update (the later put wins). This is accepted: rewards are
// best-effort and the scheduler's jobs must not serialize behind message
// handling. Only the shared hidden quest record (package quest) uses
// compare-and-set.
package progression
