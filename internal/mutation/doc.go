// Package mutation adds campaign items to the host cart.
//
// The host add endpoint is not trusted: it may answer 200 while ignoring
// the request. Every POST is followed by an independent cart read, and only
// a read showing more of the item than the read before marks it as added.
// Items are added strictly in order; a failed item aborts the rest of the
// sequence without rolling back the items before it, since the host offers
// no multi-item transaction.
package mutation
