// Package tank fetches the remote tank level sensor.
package tank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// Fetcher returns the current tank reading.
type Fetcher interface {
	Fetch(ctx context.Context) (logic.TankReading, error)
}

// payload is the sensor's JSON document.
type payload struct {
	Gallons *float64 `json:"gallons"`
	Depth   float64  `json:"depth_in"`
	Percent float64  `json:"percent"`
	Float   string   `json:"float"`
	AsOf    string   `json:"as_of"`
}

// HTTPFetcher reads the sensor's JSON endpoint.
type HTTPFetcher struct {
	url    string
	client *http.Client
}

// NewHTTPFetcher creates a fetcher for url. Callers bound each fetch with
// a context deadline.
func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{url: url, client: &http.Client{}}
}

// Fetch performs one GET. The reading's AsOf is the sensor's timestamp, so
// a sensor re-serving old data shows up as growing age.
func (f *HTTPFetcher) Fetch(ctx context.Context) (logic.TankReading, error) {
	if f.url == "" {
		return logic.TankReading{}, errors.New("tank url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return logic.TankReading{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return logic.TankReading{}, fmt.Errorf("fetch tank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return logic.TankReading{}, fmt.Errorf("fetch tank: status %d", resp.StatusCode)
	}

	var p payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return logic.TankReading{}, fmt.Errorf("decode tank: %w", err)
	}
	return p.reading()
}

func (p payload) reading() (logic.TankReading, error) {
	if p.Gallons == nil {
		return logic.TankReading{}, errors.New("tank payload missing gallons")
	}
	if *p.Gallons < 0 {
		return logic.TankReading{}, fmt.Errorf("tank payload: negative gallons %.1f", *p.Gallons)
	}
	asOf, err := time.Parse(time.RFC3339, p.AsOf)
	if err != nil {
		return logic.TankReading{}, fmt.Errorf("tank payload as_of: %w", err)
	}
	return logic.TankReading{
		Gallons: *p.Gallons,
		Depth:   p.Depth,
		Percent: p.Percent,
		Float:   ParseFloat(p.Float),
		AsOf:    asOf,
	}, nil
}

// ParseFloat maps the sensor's float text to a FloatState.
func ParseFloat(s string) logic.FloatState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALLING", "LOW", "DOWN":
		return logic.FloatCalling
	case "FULL", "HIGH", "UP":
		return logic.FloatFull
	default:
		return logic.FloatUnknown
	}
}
