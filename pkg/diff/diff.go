package diff

import (
	"errors"
	"strings"

	"github.com/mothershiphq/mothership/pkg/types"
)

// ErrMismatchedDiff is returned by Apply when a diff's operations walk
// past the end of the original content — the diff was computed
// against different content than what is being patched.
var ErrMismatchedDiff = errors.New("mismatched-diff")

// ErrBinaryNotImplemented is returned for DiffBinary, reserved by the
// protocol but not implemented in this revision .
var ErrBinaryNotImplemented = errors.New("binary diff not implemented")

const (
	fullContentSizeThreshold  = 1024 // bytes
	fullContentLineThreshold  = 10   // lines
	unchangedRatioThreshold   = 0.70 // fraction of original lines allowed to vanish
	lookaheadWindow           = 10   // lines scanned on each side to find the next match
)

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

// Compute produces the FileDiff that turns original into new. It
// favors FullContent for small or heavily rewritten files and a greedy
// LineDiff otherwise: FullContent is chosen when newContent is shorter
// than fullContentSizeThreshold bytes, has fewer than
// fullContentLineThreshold lines, or tooMuchChurn reports it.
func Compute(original, newContent string) types.FileDiff {
	if newContent == "" && original == "" {
		return types.FileDiff{Kind: types.DiffFullContent, Content: ""}
	}

	origLines := splitLines(original)
	newLines := splitLines(newContent)

	if len(newContent) < fullContentSizeThreshold ||
		len(newLines) < fullContentLineThreshold ||
		tooMuchChurn(origLines, newLines) {
		return types.FileDiff{Kind: types.DiffFullContent, Content: newContent}
	}

	ops := scan(origLines, newLines)
	return types.FileDiff{
		Kind:      types.DiffLine,
		Ops:       ops,
		OrigLines: len(origLines),
		NewLines:  len(newLines),
	}
}

// tooMuchChurn approximates "more than 70% of original lines do not
// appear unchanged in the new version" via a set-difference: it does
// not account for line order or duplicates, matching the
// description of the heuristic as an approximation.
func tooMuchChurn(origLines, newLines []string) bool {
	if len(origLines) == 0 {
		return true
	}
	newSet := make(map[string]struct{}, len(newLines))
	for _, l := range newLines {
		newSet[l] = struct{}{}
	}
	unchanged := 0
	for _, l := range origLines {
		if _, ok := newSet[l]; ok {
			unchanged++
		}
	}
	vanished := float64(len(origLines)-unchanged) / float64(len(origLines))
	return vanished > unchangedRatioThreshold
}

// scan performs a greedy common-prefix / next-match walk: a lookahead
// bounded to lookaheadWindow lines on each side keeps this linear in
// file length. It is not a minimal edit script.
func scan(origLines, newLines []string) []types.LineOp {
	var ops []types.LineOp
	i, j := 0, 0

	for i < len(origLines) && j < len(newLines) {
		if origLines[i] == newLines[j] {
			n := 0
			for i+n < len(origLines) && j+n < len(newLines) && origLines[i+n] == newLines[j+n] {
				n++
			}
			ops = append(ops, types.LineOp{Kind: types.OpKeep, N: n})
			i += n
			j += n
			continue
		}

		di, dj, found := findNextMatch(origLines, newLines, i, j)
		if !found {
			// No match within the lookahead window: replace the
			// remainder of both sides wholesale.
			ops = append(ops, types.LineOp{
				Kind:  types.OpReplace,
				N:     len(origLines) - i,
				Lines: append([]string(nil), newLines[j:]...),
			})
			i = len(origLines)
			j = len(newLines)
			break
		}

		switch {
		case di > 0 && dj > 0:
			ops = append(ops, types.LineOp{
				Kind:  types.OpReplace,
				N:     di,
				Lines: append([]string(nil), newLines[j:j+dj]...),
			})
		case di > 0:
			ops = append(ops, types.LineOp{Kind: types.OpDelete, N: di})
		case dj > 0:
			ops = append(ops, types.LineOp{
				Kind:  types.OpInsert,
				Lines: append([]string(nil), newLines[j:j+dj]...),
			})
		}
		i += di
		j += dj
	}

	if i < len(origLines) {
		ops = append(ops, types.LineOp{Kind: types.OpDelete, N: len(origLines) - i})
	}
	if j < len(newLines) {
		ops = append(ops, types.LineOp{Kind: types.OpInsert, Lines: append([]string(nil), newLines[j:]...)})
	}

	return ops
}

// findNextMatch looks for the first (di, dj) pair, both within
// lookaheadWindow of (i, j), such that origLines[i+di] == newLines[j+dj].
// It scans by increasing di+dj so the closest resync point wins.
func findNextMatch(origLines, newLines []string, i, j int) (int, int, bool) {
	maxDi := lookaheadWindow
	if i+maxDi >= len(origLines) {
		maxDi = len(origLines) - i - 1
	}
	maxDj := lookaheadWindow
	if j+maxDj >= len(newLines) {
		maxDj = len(newLines) - j - 1
	}

	for total := 0; total <= maxDi+maxDj; total++ {
		for di := 0; di <= total && di <= maxDi; di++ {
			dj := total - di
			if dj < 0 || dj > maxDj {
				continue
			}
			if origLines[i+di] == newLines[j+dj] {
				return di, dj, true
			}
		}
	}
	return 0, 0, false
}

// Apply reconstructs the new content from original and diff. It fails
// with ErrMismatchedDiff if diff's operations would walk the cursor
// past the end of original — the signal that diff was not computed
// against this original.
func Apply(original string, d types.FileDiff) (string, error) {
	switch d.Kind {
	case types.DiffFullContent:
		return d.Content, nil
	case types.DiffDeleted:
		return "", nil
	case types.DiffBinary:
		return "", ErrBinaryNotImplemented
	case types.DiffLine:
		return applyLineDiff(original, d)
	default:
		return "", ErrMismatchedDiff
	}
}

func applyLineDiff(original string, d types.FileDiff) (string, error) {
	origLines := splitLines(original)
	var out []string
	cursor := 0

	for _, op := range d.Ops {
		switch op.Kind {
		case types.OpKeep:
			if cursor+op.N > len(origLines) {
				return "", ErrMismatchedDiff
			}
			out = append(out, origLines[cursor:cursor+op.N]...)
			cursor += op.N
		case types.OpDelete:
			if cursor+op.N > len(origLines) {
				return "", ErrMismatchedDiff
			}
			cursor += op.N
		case types.OpInsert:
			out = append(out, op.Lines...)
		case types.OpReplace:
			if cursor+op.N > len(origLines) {
				return "", ErrMismatchedDiff
			}
			cursor += op.N
			out = append(out, op.Lines...)
		default:
			return "", ErrMismatchedDiff
		}
	}

	return strings.Join(out, "\n"), nil
}
