package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type Waypoint struct {
	T   float64 // s since trajectory start
	Lat float64 // deg
	Lon float64 // deg
	Psi float64 // rad, ENU heading
	V   float64 // m/s
}

// Waypoints is a recorded path. The Has* flags say which optional columns the
// source carried.
type Waypoints struct {
	Points     []Waypoint
	HasTime    bool
	HasHeading bool
	HasSpeed   bool
}

var requiredColumns = []string{"lat", "lon"}

// LoadCSV reads a waypoint file. The header names the columns; lat and lon
// are required, t, psi and v are optional. Lines starting with '#' are
// skipped.
func LoadCSV(path string) (*Waypoints, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wps, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wps, nil
}

func ReadCSV(r io.Reader) (*Waypoints, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("waypoint file missing required column: %q", k)
		}
	}

	_, hasT := idx["t"]
	_, hasPsi := idx["psi"]
	_, hasV := idx["v"]
	wps := &Waypoints{HasTime: hasT, HasHeading: hasPsi, HasSpeed: hasV}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		var wp Waypoint
		fields := []struct {
			name string
			dst  *float64
		}{
			{"t", &wp.T}, {"lat", &wp.Lat}, {"lon", &wp.Lon}, {"psi", &wp.Psi}, {"v", &wp.V},
		}
		for _, f := range fields {
			i, ok := idx[f.name]
			if !ok {
				continue
			}
			if i >= len(rec) {
				return nil, fmt.Errorf("line %d: missing column %q", line, f.name)
			}
			val, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s %q: %w", line, f.name, rec[i], err)
			}
			*f.dst = val
		}
		wps.Points = append(wps.Points, wp)
	}

	return wps, nil
}

// WriteCSV writes all five columns regardless of the Has* flags.
func WriteCSV(w io.Writer, wps *Waypoints) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"t", "lat", "lon", "psi", "v"}); err != nil {
		return err
	}
	for _, p := range wps.Points {
		row := []string{
			strconv.FormatFloat(p.T, 'f', 3, 64),
			strconv.FormatFloat(p.Lat, 'f', 9, 64),
			strconv.FormatFloat(p.Lon, 'f', 9, 64),
			strconv.FormatFloat(p.Psi, 'f', 6, 64),
			strconv.FormatFloat(p.V, 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
