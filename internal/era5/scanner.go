package era5

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Scanner retrieves metric values from a file one timestamp at a time.
type Scanner struct {
	nc   api.Group
	la   []float64
	lo   []float64
	ts   []int64
	vars []variable
	pos  int
	recs []Record
	err  error
}

// variable is a gridded (time, latitude, longitude) variable together with
// the attributes needed to unpack its values.
type variable struct {
	name   string
	vg     api.VarGetter
	scale  float64
	offset float64
	fill   []float64
}

// timeDims lists the names the time dimension goes by, older CDS files
// first.
var timeDims = []string{"time", "valid_time"}

// NewScanner creates a new ERA5 file scanner. With no variable names every
// variable laid out on the (time, latitude, longitude) grid is scanned.
func NewScanner(filePath string, variables []string) (*Scanner, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	s := &Scanner{nc: nc}
	if err := s.load(variables); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func (s *Scanner) load(names []string) error {
	var err error
	s.la, err = floatValues(s.nc, "latitude")
	if err != nil {
		return err
	}
	s.lo, err = floatValues(s.nc, "longitude")
	if err != nil {
		return err
	}
	timeDim, err := s.readTimes()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = griddedVariables(s.nc, timeDim)
	}
	if len(names) == 0 {
		return fmt.Errorf("no variables on the (%s, latitude, longitude) grid", timeDim)
	}
	for _, name := range names {
		vg, err := s.nc.GetVarGetter(name)
		if err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		if dims := vg.Dimensions(); !onGrid(dims, timeDim) {
			return fmt.Errorf("variable %q has dimensions %v, want (%s, latitude, longitude)", name, dims, timeDim)
		}
		v := variable{name: name, vg: vg, scale: 1}
		attrs := vg.Attributes()
		if f, ok := attrFloat(attrs, "scale_factor"); ok {
			v.scale = f
		}
		if f, ok := attrFloat(attrs, "add_offset"); ok {
			v.offset = f
		}
		for _, key := range []string{"_FillValue", "missing_value"} {
			if f, ok := attrFloat(attrs, key); ok {
				v.fill = append(v.fill, f)
			}
		}
		s.vars = append(s.vars, v)
	}
	return nil
}

func (s *Scanner) readTimes() (string, error) {
	for _, name := range timeDims {
		vg, err := s.nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		units, _ := vg.Attributes().Get("units")
		u, err := parseTimeUnits(fmt.Sprint(units))
		if err != nil {
			return "", fmt.Errorf("variable %q: %w", name, err)
		}
		v, err := vg.Values()
		if err != nil {
			return "", err
		}
		offsets, err := toFloats(v)
		if err != nil {
			return "", fmt.Errorf("variable %q: %w", name, err)
		}
		s.ts = make([]int64, len(offsets))
		for i, o := range offsets {
			s.ts[i] = u.unixMilli(o)
		}
		return name, nil
	}
	return "", fmt.Errorf("none of the time variables %v found", timeDims)
}

// onGrid reports whether dims are (timeDim, latitude, longitude), the layout
// Scan indexes values by.
func onGrid(dims []string, timeDim string) bool {
	return len(dims) == 3 && dims[0] == timeDim && dims[1] == "latitude" && dims[2] == "longitude"
}

func griddedVariables(nc api.Group, timeDim string) []string {
	var names []string
	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		if onGrid(vg.Dimensions(), timeDim) {
			names = append(names, name)
		}
	}
	return names
}

func floatValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	f, err := toFloats(v)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	return f, nil
}

func toFloats(v any) ([]float64, error) {
	switch v := v.(type) {
	case []float64:
		return v, nil
	case []float32:
		return convert(v), nil
	case []int64:
		return convert(v), nil
	case []int32:
		return convert(v), nil
	case []int16:
		return convert(v), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func convert[T int16 | int32 | int64 | float32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// attrFloat returns a numeric attribute. Single-element attributes may come
// back either as a scalar or as a one-element slice depending on the file
// flavour.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	if f, err := toFloats(v); err == nil && len(f) > 0 {
		return f[0], true
	}
	return 0, false
}

// Close closes the scanner.
func (s *Scanner) Close() {
	s.nc.Close()
}

// Variables returns the names of the scanned variables in the order their
// values appear in Record.Values.
func (s *Scanner) Variables() []string {
	names := make([]string, len(s.vars))
	for i, v := range s.vars {
		names[i] = v.name
	}
	return names
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (s *Scanner) Summary() []any {
	summary := []any{
		"dims", []string{"ts", "lo", "la"},
		"metrics", s.Variables(),
		"tsCnt", len(s.ts),
		"laCnt", len(s.la),
		"loCnt", len(s.lo),
		"totalRecCnt", s.TotalRecCount(),
	}
	if len(s.ts) > 0 {
		summary = append(summary,
			"from", msToTime(s.ts[0]),
			"to", msToTime(s.ts[len(s.ts)-1]))
	}
	return summary
}

// TotalRecCount returns the total number of values within the dataset.
func (s *Scanner) TotalRecCount() int {
	return len(s.ts) * len(s.la) * len(s.lo) * len(s.vars)
}

// Scan reads all records for the next timestamp.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.pos >= len(s.ts) {
		return false
	}

	grids := make([][][]float64, len(s.vars))
	for n := range s.vars {
		g, ok := s.scan(&s.vars[n])
		if !ok {
			return false
		}
		grids[n] = g
	}

	s.recs = make([]Record, len(s.la)*len(s.lo))
	k := 0
	for i, la := range s.la {
		for j, lo := range s.lo {
			values := make([]float64, len(grids))
			for n, g := range grids {
				values[n] = g[i][j]
			}
			s.recs[k] = Record{
				Timestamp: s.ts[s.pos],
				Latitude:  la,
				Longitude: lo,
				Values:    values,
			}
			k++
		}
	}
	s.pos++
	return true
}

func (s *Scanner) scan(v *variable) ([][]float64, bool) {
	begin := int64(s.pos)
	limit := begin + 1
	raw, err := v.vg.GetSlice(begin, limit)
	if err != nil {
		s.err = fmt.Errorf("variable %q at time index %d: %w", v.name, s.pos, err)
		return nil, false
	}
	var g [][]float64
	switch raw := raw.(type) {
	case [][][]int16:
		g = unpack(raw[0], v.scale, v.offset, v.fill)
	case [][][]int32:
		g = unpack(raw[0], v.scale, v.offset, v.fill)
	case [][][]float32:
		g = unpack(raw[0], v.scale, v.offset, v.fill)
	case [][][]float64:
		g = unpack(raw[0], v.scale, v.offset, v.fill)
	default:
		s.err = fmt.Errorf("variable %q: unsupported value type %T", v.name, raw)
		return nil, false
	}
	return g, true
}

// unpack applies value = packed*scale + offset, mapping fill values to NaN.
func unpack[T int16 | int32 | float32 | float64](packed [][]T, scale, offset float64, fill []float64) [][]float64 {
	out := make([][]float64, len(packed))
	for i, row := range packed {
		out[i] = make([]float64, len(row))
	rowLoop:
		for j, p := range row {
			x := float64(p)
			for _, f := range fill {
				if x == f {
					out[i][j] = math.NaN()
					continue rowLoop
				}
			}
			if math.IsNaN(x) {
				out[i][j] = x
				continue
			}
			out[i][j] = x*scale + offset
		}
	}
	return out
}

// Records returns the records that have been read by the last Scan() operation.
// The function transfers ownership of records to the caller and the subsequent
// calls to this function without prior invocation of Scan() will return nil.
func (s *Scanner) Records() []Record {
	recs := s.recs
	s.recs = nil
	return recs
}

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}
