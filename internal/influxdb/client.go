// Package influxdb writes harmonized facility records to an InfluxDB v2
// bucket. The sink is optional; live-mode ingestion uses it when
// configured so the feed doubles as a time-series backfill.
package influxdb

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/openelectricity/emissionfeed/internal/config"
	"github.com/openelectricity/emissionfeed/internal/models"
)

// Client represents an InfluxDB v2 client
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   config.InfluxConfig
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(cfg config.InfluxConfig) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	if _, err := client.Health(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to InfluxDB: %w", err)
	}

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		config:   cfg,
	}, nil
}

// WriteRecord writes one admissible record as a facility_emission point,
// stamped with the record's event time.
func (c *Client) WriteRecord(rec models.Record) {
	if !rec.HasEventTime() {
		return
	}
	point := write.NewPoint(
		"facility_emission",
		map[string]string{
			"facility_id": rec.FacilityID,
			"fuel_tech":   rec.FuelTech,
			"state":       rec.State,
		},
		map[string]interface{}{
			"power_mw":         rec.PowerOrZero(),
			"emissions_tonnes": rec.EmissionsOrZero(),
			"latitude":         rec.Latitude,
			"longitude":        rec.Longitude,
		},
		rec.EventTime,
	)
	c.writeAPI.WritePoint(point)
}

// Close flushes pending writes and closes the client
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}
