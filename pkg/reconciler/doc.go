/*
Package reconciler runs the background loop that keeps auto-checkpoint
behavior honest: every tickInterval it walks each project's active
rifts, creates an auto-checkpoint for any rift whose project-configured
AutoCheckpointInterval has elapsed since this process last checkpointed
it, then trims that rift's auto-generated checkpoints down to the
project's retention cap.

Start/Stop drive the loop from a goroutine and a stopCh the way a
long-lived background worker is expected to shut down cleanly; New
wires in the checkpoint engine and metadata store it reconciles
against. Each cycle is timed and counted via pkg/metrics.
*/
package reconciler
