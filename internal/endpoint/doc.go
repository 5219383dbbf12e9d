// Package endpoint runs one device's side of profile sync.
//
// An Endpoint owns the device's cache slot. Every mutation, merge and cache
// write runs on a single actor goroutine in the order it was issued, so the
// slot never sees interleaved read-modify-write cycles. Network sends run
// on their own goroutines with a reply timeout and post their results back
// to the actor.
//
// # Protocol
//
// On the first reachable moment after start, and after every session
// activation, an endpoint sends requestProfile:
//
//   - {noProfile:true}: the peer is empty, so the local profile is pushed
//     to seed it.
//   - a profile: last-writer-wins (merge.LWW) against the local copy. The
//     winner is persisted; if the local side won it is pushed onward.
//   - no local profile: the peer's is adopted.
//
// Local mutations are persisted first and then pushed (levelCompleted,
// gradeChanged or profileUpdated). They never wait on the peer. A
// mutation marks the device as having pending changes; the peer's
// acknowledgement clears the mark unless a newer mutation superseded the
// payload in the meantime. When the peer becomes reachable again, pending
// changes are resent.
//
// Only one send is in flight at a time. Mutations made while a send is
// outstanding are folded into a single follow-up push of the latest
// profile.
//
// # Status
//
// SyncStatus reports idle, syncing, success or error(reason). Sends never
// return errors to callers; transport failures only show up here and in
// the pending flag.
//
// # Observers
//
// OnProfileChange and OnStatusChange callbacks run on a separate goroutine,
// never on the actor, so they may call back into the Endpoint.
package endpoint
