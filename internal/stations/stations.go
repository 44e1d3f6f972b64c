// Package stations loads the station adjacency graph used to offer station
// names and to recognize picks on the diagram.
package stations

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Index is immutable after Load.
type Index struct {
	names      []string
	neighbours map[string][]string
}

func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stations: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a {"station": ["neighbour", ...]} document. Stations that only
// appear as neighbours are indexed too.
func Parse(r io.Reader) (*Index, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}

	idx := &Index{neighbours: make(map[string][]string, len(raw))}
	add := func(name string) string {
		name = strings.TrimSpace(name)
		if name == "" {
			return ""
		}
		if _, ok := idx.neighbours[name]; !ok {
			idx.neighbours[name] = nil
		}
		return name
	}
	for name, adj := range raw {
		name = add(name)
		if name == "" {
			continue
		}
		for _, n := range adj {
			if n = add(n); n != "" && n != name {
				idx.neighbours[name] = append(idx.neighbours[name], n)
			}
		}
	}

	idx.names = make([]string, 0, len(idx.neighbours))
	for name := range idx.neighbours {
		idx.names = append(idx.names, name)
	}
	col := collate.New(language.SimplifiedChinese)
	sort.SliceStable(idx.names, func(i, j int) bool {
		return col.CompareString(idx.names[i], idx.names[j]) < 0
	})
	return idx, nil
}

// Names returns every station in pinyin order.
func (x *Index) Names() []string {
	if x == nil {
		return nil
	}
	out := make([]string, len(x.names))
	copy(out, x.names)
	return out
}

func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.names)
}

func (x *Index) Contains(name string) bool {
	if x == nil {
		return false
	}
	_, ok := x.neighbours[strings.TrimSpace(name)]
	return ok
}

func (x *Index) Neighbours(name string) []string {
	if x == nil {
		return nil
	}
	adj := x.neighbours[strings.TrimSpace(name)]
	out := make([]string, len(adj))
	copy(out, adj)
	return out
}
