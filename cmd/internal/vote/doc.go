// Package vote implements the per-post vote ledger and its denormalized
// counter.
//
// Each (user, post) pair holds at most one ledger row. The post counter is
// only ever written as votes = votes + delta inside the same transaction that
// changes the ledger, so a ledger row never exists without its counter
// contribution.
package vote
