package worklist

import (
	"bufio"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ImportList reads object keys from a plain text file, one per line.
//
// Blank lines and lines starting with '#' (after trimming) are skipped, which
// is the format of hand-maintained "todo" lists. Order is preserved so the
// keys are claimed in the order they appear.
func ImportList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("worklist: open key list: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Errorf("worklist: read key list: %w", err)
	}
	return out, nil
}
