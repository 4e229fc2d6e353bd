// Package export writes recorded runs out as JSON documents and plots.
package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/DeepakIngole/genesis-path-follower/internal/control"
	"github.com/DeepakIngole/genesis-path-follower/internal/dynamo"
	"github.com/DeepakIngole/genesis-path-follower/internal/storage"
)

type ExportData struct {
	Run       storage.RunMetadata   `json:"run"`
	Steps     int                   `json:"steps"`
	Ticks     []uint64              `json:"ticks"`
	Times     []float64             `json:"times"`
	Statuses  []string              `json:"statuses"`
	States    []dynamo.VehicleState `json:"states"`
	Reference []dynamo.VehicleState `json:"reference"`
	Commands  []control.Command     `json:"commands"`
	Metrics   map[string]float64    `json:"metrics"`
}

// Build flattens a run's diagnostics. Times are seconds from the first tick,
// derived from the tick counter when the run rate is known.
func Build(meta storage.RunMetadata, ticks []control.Diagnostic, cmds []control.Command) *ExportData {
	data := &ExportData{
		Run:       meta,
		Steps:     len(ticks),
		Ticks:     make([]uint64, len(ticks)),
		Times:     make([]float64, len(ticks)),
		Statuses:  make([]string, len(ticks)),
		States:    make([]dynamo.VehicleState, len(ticks)),
		Reference: make([]dynamo.VehicleState, 0, len(ticks)),
		Commands:  cmds,
		Metrics:   meta.Metrics,
	}
	if data.Commands == nil {
		data.Commands = []control.Command{}
	}

	for i, d := range ticks {
		data.Ticks[i] = d.Tick
		data.Statuses[i] = d.Status
		data.States[i] = d.State
		switch {
		case meta.RateHz > 0:
			data.Times[i] = float64(d.Tick-ticks[0].Tick) / meta.RateHz
		default:
			data.Times[i] = d.Time.Sub(ticks[0].Time).Seconds()
		}
		if len(d.Reference) > 0 {
			data.Reference = append(data.Reference, d.Reference[0])
		}
	}
	return data
}

func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportJSON writes data to path, or to stdout when path is "-".
func ExportJSON(path string, data *ExportData) error {
	if path == "-" {
		return WriteJSON(os.Stdout, data)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(file, data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
