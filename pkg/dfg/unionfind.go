// Package dfg partitions variable occurrences into live ranges over a flow
// graph, reports reads that may see no prior write, and rewrites variable
// identities accordingly.
package dfg

// Forest is a union-find over dense element indices.
type Forest struct {
	parent []int32
}

// Add appends a singleton and returns its index.
func (f *Forest) Add() int {
	i := len(f.parent)
	f.parent = append(f.parent, int32(i))
	return i
}

// Len returns the number of elements.
func (f *Forest) Len() int {
	return len(f.parent)
}

// Find returns the representative of x, halving the path on the way.
func (f *Forest) Find(x int) int {
	for int(f.parent[x]) != x {
		f.parent[x] = f.parent[f.parent[x]]
		x = int(f.parent[x])
	}
	return x
}

// Union joins the sets of a and b and returns the new representative. The
// smaller index wins so that representatives are the earliest element.
func (f *Forest) Union(a, b int) int {
	ra, rb := f.Find(a), f.Find(b)
	if ra == rb {
		return ra
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	f.parent[rb] = int32(ra)
	return ra
}
