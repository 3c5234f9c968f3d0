/*
Package diff computes and applies the compact line-level edits the
sync protocol sends over the wire instead of full file contents.

It deliberately does not compute a minimal edit script. LineDiff is
produced by a greedy common-prefix / next-match scan with a lookahead
bounded to the first 10 lines on each side, which keeps generation
linear in file length at the cost of occasionally over-counting
replaced lines. The only correctness requirement is the round-trip
property: Apply(original, LineDiff(original, new)) == new for any pair
of line-terminated strings.
*/
package diff
