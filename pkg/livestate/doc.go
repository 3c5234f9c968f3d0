/*
Package livestate tracks the current in-memory content of every file in
an active rift: a per-rift map of path to content kept
up to date as diffs arrive, so an incoming FileDiffChanged can be
applied against the right pre-image and a new joiner can be handed a
full snapshot without re-reading every checkpoint.

State for a rift is rehydrated from its latest checkpoint on first
access and discarded once the rift has no more live subscribers,
matching the bus's lazy-topic lifecycle.
*/
package livestate
