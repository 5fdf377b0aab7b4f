package ndt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/will1991/perception-oru/scoreeval"
)

// DefaultScanPattern names scan files as base name followed by the index.
const DefaultScanPattern = "%s%d.pcd"

const maxPreallocPoints = 1 << 20

// PCDLoader loads numbered scans stored as PCD files.
type PCDLoader struct {
	Pattern string // fmt pattern taking the base name and the index
}

// Path returns the file name of the scan with the given index.
func (l PCDLoader) Path(basePath string, index int) string {
	pattern := l.Pattern
	if pattern == "" {
		pattern = DefaultScanPattern
	}
	return fmt.Sprintf(pattern, basePath, index)
}

// Load reads one scan. Points with non-finite coordinates are dropped.
func (l PCDLoader) Load(basePath string, index int) (scoreeval.PointSet, error) {
	path := l.Path(basePath, index)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scan: %w", err)
	}
	defer func() { _ = f.Close() }()

	points, err := ReadPCD(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

type pcdHeader struct {
	fields []string
	size   []int
	typ    []string
	count  []int
	points int
	data   string
}

// capacity caps the preallocation at maxPreallocPoints; append grows past it.
func (h *pcdHeader) capacity() int {
	return min(h.points, maxPreallocPoints)
}

func (h *pcdHeader) fieldIndex(name string) int {
	for i, f := range h.fields {
		if f == name {
			return i
		}
	}
	return -1
}

// recordLayout returns the byte offset of each field in a binary record and
// the record length.
func (h *pcdHeader) recordLayout() ([]int, int) {
	offsets := make([]int, len(h.fields))
	total := 0
	for i := range h.fields {
		offsets[i] = total
		total += h.size[i] * h.count[i]
	}
	return offsets, total
}

func parseInts(tokens []string) ([]int, error) {
	out := make([]int, len(tokens))
	for i, t := range tokens {
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", t)
		}
		out[i] = v
	}
	return out, nil
}

func readPCDHeader(in *bufio.Reader) (*pcdHeader, error) {
	h := &pcdHeader{}
	for h.data == "" {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		line, _, _ = strings.Cut(line, "#")
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		name, values := tokens[0], tokens[1:]
		switch name {
		case "FIELDS":
			h.fields = values
		case "SIZE":
			if h.size, err = parseInts(values); err != nil {
				return nil, fmt.Errorf("SIZE: %w", err)
			}
		case "TYPE":
			h.typ = values
		case "COUNT":
			if h.count, err = parseInts(values); err != nil {
				return nil, fmt.Errorf("COUNT: %w", err)
			}
		case "POINTS":
			if len(values) != 1 {
				return nil, fmt.Errorf("POINTS: expected one value")
			}
			if h.points, err = strconv.Atoi(values[0]); err != nil {
				return nil, fmt.Errorf("POINTS: invalid integer %q", values[0])
			}
		case "DATA":
			if len(values) != 1 {
				return nil, fmt.Errorf("DATA: expected one value")
			}
			h.data = values[0]
		}
	}

	if h.count == nil {
		h.count = make([]int, len(h.fields))
		for i := range h.count {
			h.count[i] = 1
		}
	}
	if h.fieldIndex("x") < 0 || h.fieldIndex("y") < 0 || h.fieldIndex("z") < 0 {
		return nil, fmt.Errorf("fields %v lack x y z", h.fields)
	}
	if len(h.size) != len(h.fields) || len(h.typ) != len(h.fields) || len(h.count) != len(h.fields) {
		return nil, fmt.Errorf("SIZE/TYPE/COUNT do not match %d fields", len(h.fields))
	}
	if h.points < 0 {
		return nil, fmt.Errorf("POINTS: negative count %d", h.points)
	}
	for i, f := range h.fields {
		if h.size[i] <= 0 || h.count[i] <= 0 {
			return nil, fmt.Errorf("field %s: SIZE %d and COUNT %d must be positive", f, h.size[i], h.count[i])
		}
	}
	return h, nil
}

// ReadPCD reads the x, y and z fields of an ascii or binary PCD stream.
func ReadPCD(r io.Reader) (scoreeval.PointSet, error) {
	in := bufio.NewReader(r)
	h, err := readPCDHeader(in)
	if err != nil {
		return nil, err
	}
	switch h.data {
	case "ascii":
		return readPCDASCII(in, h)
	case "binary":
		return readPCDBinary(in, h)
	default:
		return nil, fmt.Errorf("unsupported pcd data type %q", h.data)
	}
}

func appendFinite(points scoreeval.PointSet, v r3.Vec) scoreeval.PointSet {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return points
		}
	}
	return append(points, v)
}

func readPCDASCII(in *bufio.Reader, h *pcdHeader) (scoreeval.PointSet, error) {
	// Column of each field in an ascii row, accounting for COUNT > 1.
	cols := make([]int, len(h.fields))
	width := 0
	for i := range h.fields {
		cols[i] = width
		width += h.count[i]
	}
	xi, yi, zi := cols[h.fieldIndex("x")], cols[h.fieldIndex("y")], cols[h.fieldIndex("z")]

	points := make(scoreeval.PointSet, 0, h.capacity())
	scanner := bufio.NewScanner(in)
	for i := 0; i < h.points; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("expected %d points, got %d", h.points, i)
		}
		tokens := strings.Fields(scanner.Text())
		if len(tokens) != width {
			return nil, fmt.Errorf("point %d: expected %d values, got %d", i, width, len(tokens))
		}
		var v [3]float64
		for j, col := range [3]int{xi, yi, zi} {
			f, err := strconv.ParseFloat(tokens[col], 64)
			if err != nil {
				return nil, fmt.Errorf("point %d: invalid value %q", i, tokens[col])
			}
			v[j] = f
		}
		points = appendFinite(points, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
	}
	return points, nil
}

func readPCDBinary(in *bufio.Reader, h *pcdHeader) (scoreeval.PointSet, error) {
	offsets, recordLen := h.recordLayout()
	decode := make([]func([]byte) float64, 3)
	for j, name := range []string{"x", "y", "z"} {
		i := h.fieldIndex(name)
		off := offsets[i]
		switch {
		case h.typ[i] == "F" && h.size[i] == 4:
			decode[j] = func(b []byte) float64 {
				return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
			}
		case h.typ[i] == "F" && h.size[i] == 8:
			decode[j] = func(b []byte) float64 {
				return math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
			}
		default:
			return nil, fmt.Errorf("unsupported binary type %s%d for field %s", h.typ[i], h.size[i], name)
		}
	}

	points := make(scoreeval.PointSet, 0, h.capacity())
	buf := make([]byte, recordLen)
	for i := 0; i < h.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("expected %d points, got %d", h.points, i)
			}
			return nil, err
		}
		points = appendFinite(points, r3.Vec{X: decode[0](buf), Y: decode[1](buf), Z: decode[2](buf)})
	}
	return points, nil
}

// WritePCD writes points as an ascii PCD stream.
func WritePCD(w io.Writer, points scoreeval.PointSet) error {
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintf(bw, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA ascii\n", len(points), len(points))
	for _, p := range points {
		_, _ = fmt.Fprintf(bw, "%g %g %g\n", p.X, p.Y, p.Z)
	}
	return bw.Flush()
}
