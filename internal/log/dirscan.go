package log

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentExt = ".log"

// segmentPath returns the path of generation gen's segment file inside
// dir.
func segmentPath(dir string, gen uint64) string {
	return filepath.Join(dir, strconv.FormatUint(gen, 10)+segmentExt)
}

// sortedGenerations scans dir for files named "<gen>.log", parses the
// generation out of each name, and returns them in ascending order.
// Anything that isn't a regular file, or whose stem doesn't parse as a
// decimal uint64, is silently skipped: only the engine writes into this
// directory, but a stray file (a ".DS_Store", an editor swapfile) must
// never abort startup.
func sortedGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var gens []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, segmentExt) {
			continue
		}
		stem := strings.TrimSuffix(name, segmentExt)
		gen, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		gens = append(gens, gen)
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}
