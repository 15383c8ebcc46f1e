// Package history persists decoded litter box snapshots in SQLite.
//
// Every change observed by the controller is stored as a JSON row together
// with its work status and last-usage timestamp. The usage column doubles as
// the source of the "recent visits" list served through the controller's
// usage cache, so the repository implements litterbox.UsageSource.
//
// Rows are written by a Recorder registered as a controller update listener;
// it skips snapshots identical to the last one stored so a steady device
// does not produce a row per poll.
package history
