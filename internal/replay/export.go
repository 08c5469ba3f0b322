package replay

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrNoAnchor is returned by exports that need geographic coordinates.
var ErrNoAnchor = errors.New("site anchor required for geographic export")

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// ExportCSV writes one row per cycle.
func (r *Result) ExportCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"cycle", "time", "t0", "t1", "t2", "t3", "accepted", "reason", "x_ft", "y_ft", "cost_ft2", "iterations"}
	if r.Anchor != nil {
		header = append(header, "latitude", "longitude")
	}
	header = append(header, "ref_x_ft", "ref_y_ft", "ref_residual_ft2")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range r.Cycles {
		row := []string{
			strconv.Itoa(c.Index),
			c.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatUint(uint64(c.Capture[0]), 10),
			strconv.FormatUint(uint64(c.Capture[1]), 10),
			strconv.FormatUint(uint64(c.Capture[2]), 10),
			strconv.FormatUint(uint64(c.Capture[3]), 10),
			strconv.FormatBool(c.Accepted),
			c.Reason,
		}
		if c.Accepted || c.Reason == ReasonNotAccepted {
			row = append(row, formatFloat(c.X, 3), formatFloat(c.Y, 3), formatFloat(c.Cost, 5), strconv.Itoa(c.Iterations))
		} else {
			row = append(row, "", "", "", "")
		}
		if r.Anchor != nil {
			if c.Accepted {
				lat, lon := r.Anchor.Locate(c.X, c.Y)
				row = append(row, formatFloat(lat, 8), formatFloat(lon, 8))
			} else {
				row = append(row, "", "")
			}
		}
		if c.Reference != nil {
			row = append(row, formatFloat(c.Reference.X, 3), formatFloat(c.Reference.Y, 3), formatFloat(c.Reference.Residual, 5))
		} else {
			row = append(row, "", "", "")
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportGeoJSON writes the emitter rectangle, the track of accepted fixes and
// each fix as a point feature.
func (r *Result) ExportGeoJSON(filename string) error {
	if r.Anchor == nil {
		return ErrNoAnchor
	}
	a := r.Anchor
	point := func(x, y float64) []float64 {
		lat, lon := a.Locate(x, y)
		return []float64{lon, lat}
	}

	features := []map[string]interface{}{}

	// Rectangle outline through the four emitters, closed
	ring := make([][]float64, 0, 5)
	for k := 0; k < 4; k++ {
		ring = append(ring, point(r.Params.Emitter(k)))
	}
	ring = append(ring, ring[0])
	features = append(features, map[string]interface{}{
		"type": "Feature",
		"geometry": map[string]interface{}{
			"type":        "Polygon",
			"coordinates": [][][]float64{ring},
		},
		"properties": map[string]interface{}{
			"name":      "Emitter rectangle",
			"type":      "site",
			"width_ft":  r.Params.Width,
			"height_ft": r.Params.Height,
		},
	})

	for k := 0; k < 4; k++ {
		features = append(features, map[string]interface{}{
			"type": "Feature",
			"geometry": map[string]interface{}{
				"type":        "Point",
				"coordinates": point(r.Params.Emitter(k)),
			},
			"properties": map[string]interface{}{
				"name": fmt.Sprintf("Emitter %d", k),
				"type": "emitter",
			},
		})
	}

	var track [][]float64
	for _, c := range r.Cycles {
		if !c.Accepted {
			continue
		}
		coords := point(c.X, c.Y)
		track = append(track, coords)
		features = append(features, map[string]interface{}{
			"type": "Feature",
			"geometry": map[string]interface{}{
				"type":        "Point",
				"coordinates": coords,
			},
			"properties": map[string]interface{}{
				"type":       "fix",
				"cycle":      c.Index,
				"time":       c.Time.UTC().Format(time.RFC3339Nano),
				"x_ft":       c.X,
				"y_ft":       c.Y,
				"cost_ft2":   c.Cost,
				"iterations": c.Iterations,
			},
		})
	}
	if len(track) > 1 {
		features = append(features, map[string]interface{}{
			"type": "Feature",
			"geometry": map[string]interface{}{
				"type":        "LineString",
				"coordinates": track,
			},
			"properties": map[string]interface{}{
				"name": "Track",
				"type": "track",
			},
		})
	}

	geojson := map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
		"properties": map[string]interface{}{
			"title":           "Ultrasonic positioning replay",
			"session":         r.SessionID,
			"cycles":          r.Summary.Cycles,
			"accepted":        r.Summary.Accepted,
			"heading_deg":     a.Heading,
			"processing_time": r.ProcessingTime.UTC().Format(time.RFC3339),
		},
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create GeoJSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(geojson); err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return nil
}
