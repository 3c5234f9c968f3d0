/*
Package log provides structured logging built on zerolog: a global
Logger configured once via Init, and WithComponent/WithRift/
WithProject/WithUser helpers that attach one contextual field and
return a child logger, so call sites don't thread a logger through
every function signature.

Init picks JSON or console output based on Config.JSONOutput; servers
want JSON for log aggregation, local development wants the console
writer's colorized, aligned output.
*/
package log
