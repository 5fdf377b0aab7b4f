package ndt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/will1991/perception-oru/scoreeval"
)

// Cell is a voxel summarized by the mean and covariance of its points.
type Cell struct {
	Mean   r3.Vec
	Cov    mat3
	Points int
}

type cellKey struct{ x, y, z int }

// CellMap is a normal distributions transform of a point set.
type CellMap struct {
	Resolution float64
	cells      map[cellKey]*Cell
	ordered    []*Cell
}

// CellCount returns the number of occupied cells
func (m *CellMap) CellCount() int {
	return len(m.ordered)
}

// Cells returns the occupied cells in a fixed order.
func (m *CellMap) Cells() []*Cell {
	return m.ordered
}

func (m *CellMap) key(p r3.Vec) cellKey {
	return cellKey{
		x: int(math.Floor(p.X / m.Resolution)),
		y: int(math.Floor(p.Y / m.Resolution)),
		z: int(math.Floor(p.Z / m.Resolution)),
	}
}

// neighbours calls fn for the cell containing p and its 26 neighbours.
func (m *CellMap) neighbours(p r3.Vec, fn func(*Cell)) {
	k := m.key(p)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if c, ok := m.cells[cellKey{k.x + dx, k.y + dy, k.z + dz}]; ok {
					fn(c)
				}
			}
		}
	}
}

// MapBuilder turns point sets into cell maps.
type MapBuilder struct {
	MinPoints       int     // Cells with fewer points are dropped
	EigenRatioFloor float64 // Smallest eigenvalue kept relative to the largest
}

// DefaultMapBuilder returns the stock cell settings.
func DefaultMapBuilder() MapBuilder {
	return MapBuilder{MinPoints: 5, EigenRatioFloor: 0.01}
}

// Build implements scoreeval.MapBuilder.
func (b MapBuilder) Build(points scoreeval.PointSet, resolution float64) (scoreeval.SpatialMap, error) {
	m, err := b.BuildCellMap(points, resolution)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// BuildCellMap groups points into voxels of the given edge length.
func (b MapBuilder) BuildCellMap(points scoreeval.PointSet, resolution float64) (*CellMap, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be > 0, got %g", resolution)
	}
	m := &CellMap{Resolution: resolution, cells: make(map[cellKey]*Cell)}

	buckets := make(map[cellKey][]r3.Vec)
	for _, p := range points {
		k := m.key(p)
		buckets[k] = append(buckets[k], p)
	}

	minPoints := max(b.MinPoints, 3)
	keys := make([]cellKey, 0, len(buckets))
	for k, pts := range buckets {
		if len(pts) >= minPoints {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, c := keys[i], keys[j]
		if a.x != c.x {
			return a.x < c.x
		}
		if a.y != c.y {
			return a.y < c.y
		}
		return a.z < c.z
	})

	for _, k := range keys {
		cell, ok := b.summarize(buckets[k])
		if !ok {
			continue
		}
		m.cells[k] = cell
		m.ordered = append(m.ordered, cell)
	}
	if len(m.ordered) == 0 {
		return nil, fmt.Errorf("no cell holds %d or more of %d points", minPoints, len(points))
	}
	return m, nil
}

func (b MapBuilder) summarize(pts []r3.Vec) (*Cell, bool) {
	n := float64(len(pts))
	var mean r3.Vec
	for _, p := range pts {
		mean = r3.Add(mean, p)
	}
	mean = r3.Scale(1/n, mean)

	cov := mat.NewSymDense(3, nil)
	for _, p := range pts {
		d := r3.Sub(p, mean)
		v := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				cov.SetSym(i, j, cov.At(i, j)+v[i]*v[j]/(n-1))
			}
		}
	}

	reg, ok := regularize(cov, b.EigenRatioFloor)
	if !ok {
		return nil, false
	}
	return &Cell{Mean: mean, Cov: reg, Points: len(pts)}, true
}

// regularize lifts small eigenvalues to ratio times the largest one so
// planar and linear cells stay invertible.
func regularize(cov *mat.SymDense, ratio float64) (mat3, bool) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return mat3{}, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	largest := values[len(values)-1]
	if largest <= 0 {
		return mat3{}, false
	}
	if ratio <= 0 {
		ratio = 0.01
	}
	for i, v := range values {
		values[i] = math.Max(v, ratio*largest)
	}

	var out mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += vectors.At(i, k) * values[k] * vectors.At(j, k)
			}
			out[i][j] = s
		}
	}
	return out, true
}

func asCellMaps(fixed, moving scoreeval.SpatialMap) (*CellMap, *CellMap, error) {
	f, ok := fixed.(*CellMap)
	if !ok {
		return nil, nil, fmt.Errorf("fixed map is %T, want *ndt.CellMap", fixed)
	}
	m, ok := moving.(*CellMap)
	if !ok {
		return nil, nil, fmt.Errorf("moving map is %T, want *ndt.CellMap", moving)
	}
	return f, m, nil
}
