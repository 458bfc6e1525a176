package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/pkg/client"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// costRow is one daily cost row in a JSON or YAML input file
type costRow struct {
	Date       string   `json:"date" yaml:"date"`
	Cost       *float64 `json:"cost" yaml:"cost"`
	Service    string   `json:"service" yaml:"service"`
	Provider   string   `json:"provider" yaml:"provider"`
	Region     string   `json:"region,omitempty" yaml:"region,omitempty"`
	ResourceID string   `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
}

type eventRow struct {
	Date        string   `json:"date" yaml:"date"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Services    []string `json:"services,omitempty" yaml:"services,omitempty"`
}

type utilizationRow struct {
	Date       string  `json:"date" yaml:"date"`
	Provider   string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Service    string  `json:"service,omitempty" yaml:"service,omitempty"`
	ResourceID string  `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Metric     string  `json:"metric" yaml:"metric"`
	Value      float64 `json:"value" yaml:"value"`
}

// parseDate accepts a calendar date or an RFC3339 timestamp
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

func fileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// decodeStructured decodes a JSON or YAML list from r into dst
func decodeStructured(r io.Reader, format string, dst interface{}) error {
	if format == "yaml" {
		if err := yaml.NewDecoder(r).Decode(dst); err != nil && err != io.EOF {
			return err
		}
		return nil
	}
	return json.NewDecoder(r).Decode(dst)
}

func readRows(path string) ([]costRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format := fileFormat(path)
	if format == "csv" {
		return readCSV(f)
	}
	var rows []costRow
	if err := decodeStructured(f, format, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// readCSV reads rows with a header naming at least date and cost columns
func readCSV(r io.Reader) ([]costRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := make(map[string]int)
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["date"]; !ok {
		return nil, fmt.Errorf("csv header must include a date column")
	}
	if _, ok := col["cost"]; !ok {
		return nil, fmt.Errorf("csv header must include a cost column")
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rows := make([]costRow, 0, len(records)-1)
	for line, rec := range records[1:] {
		row := costRow{
			Date:       get(rec, "date"),
			Service:    get(rec, "service"),
			Provider:   get(rec, "provider"),
			Region:     get(rec, "region"),
			ResourceID: get(rec, "resource_id"),
		}
		if raw := get(rec, "cost"); raw != "" && !strings.EqualFold(raw, "null") {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid cost %q", line+2, raw)
			}
			v := d.InexactFloat64()
			row.Cost = &v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadObservations reads cost observations from CSV, JSON or YAML files
func loadObservations(paths ...string) ([]anomaly.CostObservation, error) {
	var out []anomaly.CostObservation
	for _, path := range paths {
		rows, err := readRows(path)
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			d, err := parseDate(r.Date)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			obs := anomaly.CostObservation{
				Date:       d,
				Service:    r.Service,
				Provider:   r.Provider,
				ResourceID: r.ResourceID,
			}
			if r.Cost != nil && !math.IsNaN(*r.Cost) && !math.IsInf(*r.Cost, 0) {
				obs.Cost = decimal.NewNullDecimal(decimal.NewFromFloat(*r.Cost))
			}
			out = append(out, obs)
		}
	}
	return out, nil
}

// loadCostRows reads files into API ingest rows
func loadCostRows(paths ...string) ([]client.CostRow, error) {
	var out []client.CostRow
	for _, path := range paths {
		rows, err := readRows(path)
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			d, err := parseDate(r.Date)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
			}
			out = append(out, client.CostRow{
				Provider:    strings.ToLower(r.Provider),
				ServiceName: r.Service,
				Region:      r.Region,
				ResourceID:  r.ResourceID,
				CostDate:    d.Format(dateLayout),
				DailyCost:   r.Cost,
			})
		}
	}
	return out, nil
}

func loadEvents(path string) ([]anomaly.CustomEvent, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []eventRow
	if err := decodeStructured(f, fileFormat(path), &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	events := make([]anomaly.CustomEvent, 0, len(rows))
	for i, r := range rows {
		d, err := parseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s event %d: %w", path, i+1, err)
		}
		events = append(events, anomaly.CustomEvent{Date: d, Name: r.Name, Description: r.Description, Services: r.Services})
	}
	return events, nil
}

func loadUtilization(path string) ([]anomaly.UtilizationObservation, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []utilizationRow
	if err := decodeStructured(f, fileFormat(path), &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make([]anomaly.UtilizationObservation, 0, len(rows))
	for i, r := range rows {
		d, err := parseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s sample %d: %w", path, i+1, err)
		}
		out = append(out, anomaly.UtilizationObservation{
			Date:       d,
			Provider:   r.Provider,
			Service:    r.Service,
			ResourceID: r.ResourceID,
			Metric:     r.Metric,
			Value:      r.Value,
		})
	}
	return out, nil
}
