// Package litterbox turns the raw PetMarvel property map into a typed
// Snapshot and exposes the litter box's controls.
//
// A Controller ties together a cloud session, two polling caches (device
// properties and usage history) and a set of listeners:
//
//	Refresh        connect, read properties through the cache, decode, publish
//	SetProperty    write one property, patch the snapshot, publish
//	InvokeService  map clean/level/dump onto the DeviceControl property
//
// Decoding is table-driven (see fields.go). A missing or mis-typed field
// fails the whole refresh; nothing partial is published.
package litterbox
