package replay

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/carp/internal/wire"
)

// GoldenDir is the fixture root, relative to the test's package directory.
const GoldenDir = "testdata/golden"

// MarshalGolden renders entries as an indented JSON array of their
// normalized wire forms. Keys are in canonical order.
func MarshalGolden(entries []LoggedRequest, n Normalizer) ([]byte, error) {
	normalized := n.Normalize(entries)
	arr := make(wire.Array, len(normalized))
	for i, e := range normalized {
		arr[i] = e.Object()
	}

	compact, err := wire.Marshal(arr)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// GroupByOperation splits entries by short operation name, keeping log order
// within each group. The returned names are in order of first appearance.
func GroupByOperation(entries []LoggedRequest) ([]string, map[string][]LoggedRequest) {
	var names []string
	groups := make(map[string][]LoggedRequest)
	for _, e := range entries {
		name := e.ShortOperation()
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], e)
	}
	return names, groups
}

// AssertGolden compares entries against
// testdata/golden/<service>/<operation>.golden, one file per operation.
//
// To regenerate golden files, run:
//
//	go test ./... -update
func AssertGolden(t *testing.T, service string, entries []LoggedRequest, n Normalizer) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join(GoldenDir, service)),
		goldie.WithNameSuffix(".golden"),
	)

	names, groups := GroupByOperation(entries)
	for _, name := range names {
		data, err := MarshalGolden(groups[name], n)
		if err != nil {
			t.Fatalf("golden %s/%s: %v", service, name, err)
		}
		g.Assert(t, name, data)
	}
}
