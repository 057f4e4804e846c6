package backend

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseStatus parses "git status --porcelain" (v1) output. Lines that are not
// status entries, such as the "Running:" preamble, are skipped.
func ParseStatus(out string) []StatusEntry {
	var entries []StatusEntry
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		if len(line) < 4 || line[2] != ' ' || !isStatusCode(line[:2]) {
			continue
		}
		path := line[3:]
		if unq, err := strconv.Unquote(path); err == nil && strings.HasPrefix(path, `"`) {
			path = unq
		}
		entries = append(entries, StatusEntry{Code: line[:2], Path: path})
	}
	return entries
}

func isStatusCode(code string) bool {
	const valid = " MTADRCU?!"
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(valid, rune(code[i])) {
			return false
		}
	}
	return code != "  "
}

// ParseLsRemote parses "git ls-remote" output. Peeled tag entries ("^{}")
// replace the hash of the annotated tag they belong to.
func ParseLsRemote(out string) ([]Ref, error) {
	peeled := map[string]string{}
	var refs []Ref
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "Running: ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("unexpected ls-remote output line: %q", raw)
		}
		hash, name := parts[0], parts[1]
		if base, ok := strings.CutSuffix(name, "^{}"); ok {
			peeled[base] = hash
			continue
		}
		ref := Ref{Hash: hash, Kind: RefKindOther, Name: name}
		if short, ok := strings.CutPrefix(name, "refs/heads/"); ok {
			ref.Kind, ref.Name = RefKindBranch, short
		} else if short, ok := strings.CutPrefix(name, "refs/tags/"); ok {
			ref.Kind, ref.Name = RefKindTag, short
		}
		refs = append(refs, ref)
	}
	for i, ref := range refs {
		if ref.Kind != RefKindTag {
			continue
		}
		if hash, ok := peeled["refs/tags/"+ref.Name]; ok {
			refs[i].Hash = hash
		}
	}
	return refs, nil
}

// scanProgressLines is a bufio.SplitFunc that treats both '\r' and '\n' as
// line terminators, so transfer meters that redraw in place arrive as
// separate lines.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var percentRE = regexp.MustCompile(`(\d{1,3})% \((\d+)/(\d+)\)`)

// parseFraction extracts the completion ratio from git meter lines such as
// "Receiving objects:  45% (9/20)". Lines without a meter yield NoFraction.
func parseFraction(line string) float64 {
	m := percentRE.FindStringSubmatch(line)
	if m == nil {
		return NoFraction
	}
	done, err1 := strconv.Atoi(m[2])
	total, err2 := strconv.Atoi(m[3])
	if err1 == nil && err2 == nil && total > 0 {
		return float64(done) / float64(total)
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return NoFraction
	}
	return float64(pct) / 100
}
