// Package bigquery mirrors aggregated grocery prices into BigQuery and
// manages the analytics dataset schema.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"

	"github.com/dvloznov/grocery-tracker/internal/config"
)

// Client is a BigQuery client bound to the analytics dataset.
type Client struct {
	bq        *bigquery.Client
	projectID string
	datasetID string
	table     string
	log       zerolog.Logger
}

// New creates a Client from the analytics configuration.
func New(ctx context.Context, cfg config.AnalyticsConfig, log zerolog.Logger) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery: project id is required")
	}
	bq, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery: creating client: %w", err)
	}
	return &Client{
		bq:        bq,
		projectID: cfg.ProjectID,
		datasetID: cfg.Dataset,
		table:     cfg.Table,
		log:       log.With().Str("component", "bigquery").Logger(),
	}, nil
}

// Close closes the BigQuery client connection.
func (c *Client) Close() error {
	if c.bq != nil {
		return c.bq.Close()
	}
	return nil
}

// qualified returns the backtick-quoted project.dataset.table name.
func (c *Client) qualified(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.datasetID, table)
}

// exec runs a statement and waits for the job to finish.
func (c *Client) exec(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
