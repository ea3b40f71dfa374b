// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 19th 2026
// Project: Coherent Reconciliation of Hierarchical Forecasts
// Class: 02-613 at Caregie Mellon University

package hierarchy

import (
	"sort"
)

// Level is one named level of the hierarchy and the series that belong to it.
type Level struct {
	Name string
	IDs  []string
}

// Tags lists the hierarchy levels, top level first. A slice is used instead
// of a map because level order matters.
type Tags []Level

// Level looks a level up by name.
func (tags Tags) Level(name string) (Level, bool) {
	for _, lv := range tags {
		if lv.Name == name {
			return lv, true
		}
	}
	return Level{}, false
}

// Names returns the level names in order.
func (tags Tags) Names() []string {
	names := make([]string, len(tags))
	for i, lv := range tags {
		names[i] = lv.Name
	}
	return names
}

// SortedBySize returns the levels ordered from fewest to most series. Ties
// keep their original order.
func (tags Tags) SortedBySize() Tags {
	out := append(Tags(nil), tags...)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].IDs) < len(out[j].IDs)
	})
	return out
}

// Validate checks tags against st: every id must be a row of S, and the
// largest level must be exactly the leaf set.
func (tags Tags) Validate(st *Structure) error {
	if len(tags) == 0 {
		return Errorf(ErrShapeMismatch, "", nil, "tags are empty")
	}
	var unknown []string
	seen := make(map[string]bool)
	for _, lv := range tags {
		for _, id := range lv.IDs {
			if _, ok := st.Index(id); !ok && !seen[id] {
				unknown = append(unknown, id)
				seen[id] = true
			}
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Errorf(ErrUnknownSeries, "", unknown, "tags reference series absent from S")
	}
	sorted := tags.SortedBySize()
	bottom := sorted[len(sorted)-1]
	missing, extra := Diff(st.Bottom, bottom.IDs)
	if len(missing) > 0 || len(extra) > 0 {
		return Errorf(ErrShapeMismatch, "", append(missing, extra...),
			"bottom level %q does not match the leaves of S", bottom.Name)
	}
	return nil
}

// Indices resolves each level to S rows. Unknown ids are skipped; call
// Validate first.
func (tags Tags) Indices(st *Structure) [][]int {
	out := make([][]int, len(tags))
	for i, lv := range tags {
		for _, id := range lv.IDs {
			if row, ok := st.Index(id); ok {
				out[i] = append(out[i], row)
			}
		}
	}
	return out
}

// Family is a parent series and its children one level down, as S rows.
type Family struct {
	Parent   int
	Children []int
}

// ChildNodes links each level (sorted by size) to the next one down. The
// result has one entry per level except the bottom one.
func ChildNodes(st *Structure, sorted Tags) [][]Family {
	idx := sorted.Indices(st)
	_, c := st.S.Dims()
	out := make([][]Family, 0, len(sorted))
	for lv := 0; lv+1 < len(sorted); lv++ {
		var families []Family
		for _, parent := range idx[lv] {
			f := Family{Parent: parent}
			for _, child := range idx[lv+1] {
				for j := 0; j < c; j++ {
					if st.S.At(parent, j) != 0 && st.S.At(child, j) != 0 {
						f.Children = append(f.Children, child)
						break
					}
				}
			}
			families = append(families, f)
		}
		out = append(out, families)
	}
	return out
}

// IsStrictlyHierarchical reports whether every leaf has exactly one ancestor
// in each level, i.e. the number of distinct leaf-to-top paths equals the
// number of nodes in the level just above the bottom.
func IsStrictlyHierarchical(st *Structure, tags Tags) bool {
	sorted := tags.SortedBySize()
	if len(sorted) < 2 {
		return true
	}
	upper := sorted[:len(sorted)-1]
	idx := upper.Indices(st)
	_, c := st.S.Dims()

	// For each leaf, the node it belongs to in every upper level.
	paths := make(map[string]struct{})
	for j := 0; j < c; j++ {
		key := make([]byte, 0, 8*len(idx))
		for _, rows := range idx {
			owner := -1
			for _, r := range rows {
				if st.S.At(r, j) == 0 {
					continue
				}
				if owner >= 0 {
					return false
				}
				owner = r
			}
			key = appendInt(key, owner)
		}
		paths[string(key)] = struct{}{}
	}
	return len(paths) == len(idx[len(idx)-1])
}

func appendInt(b []byte, v int) []byte {
	u := uint32(int32(v))
	return append(b, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}
