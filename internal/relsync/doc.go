// Package relsync keeps the viewer's follow edges in sync with the remote
// authority.
//
// Every edge is applied optimistically: a toggle moves the edge into a pending
// status and adjusts counts at once, then a confirmation call runs in the
// background. The response either commits the pending status or rolls the edge
// and its count delta back. Each request carries a generation token; a response
// whose generation is no longer current for its edge is discarded, so late
// answers can never overwrite newer local state.
//
// At most one request is outstanding per edge. Toggling an edge that is still
// pending fails with a Busy error and makes no network call. Distinct edges are
// independent and may have requests in flight at the same time.
package relsync
