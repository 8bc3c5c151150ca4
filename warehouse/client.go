package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/vmpay_warehouse/config"
	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client is the narrow warehouse surface the upsert engine needs. Table
// names are bare (dataset-unqualified); the implementation owns dataset
// scoping. The BigQuery implementation lives below; tests use a fake.
type Client interface {
	TableExists(ctx context.Context, table string) (bool, error)
	// CreateTable creates a table with the given schema. It is only called
	// when TableExists reported false; existing tables are never altered.
	CreateTable(ctx context.Context, table string, schema TableSchema) error
	// LoadTruncate replaces the table's contents with the given rows under
	// the given schema, waiting for the load job to finish.
	LoadTruncate(ctx context.Context, table string, schema TableSchema, rows []map[string]interface{}) error
	// Merge runs a DML statement and returns the number of affected rows.
	Merge(ctx context.Context, sql string) (int64, error)
	DeleteTable(ctx context.Context, table string) error
	Close() error
}

type bigQueryClient struct {
	bq      *bigquery.Client
	dataset string
}

// NewBigQueryClient builds the production warehouse client. Prefers ADC;
// explicit JSON credentials can be supplied for local runs, same convention
// as the GCS helpers.
func NewBigQueryClient(ctx context.Context, cfg *config.Config) (Client, error) {
	projectID := cfg.BigQueryProjectID
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.BigQueryCredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.BigQueryCredentialsJSON)))
	}

	bq, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &bigQueryClient{bq: bq, dataset: cfg.BigQueryDatasetID}, nil
}

func (c *bigQueryClient) table(name string) *bigquery.Table {
	return c.bq.Dataset(c.dataset).Table(name)
}

func (c *bigQueryClient) TableExists(ctx context.Context, table string) (bool, error) {
	_, err := c.table(table).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *bigQueryClient) CreateTable(ctx context.Context, table string, schema TableSchema) error {
	meta := &bigquery.TableMetadata{Schema: toBigQuerySchema(schema)}
	return c.table(table).Create(ctx, meta)
}

func (c *bigQueryClient) LoadTruncate(ctx context.Context, table string, schema TableSchema, rows []map[string]interface{}) error {
	data, err := encodeNDJSON(rows)
	if err != nil {
		return fmt.Errorf("encode rows for %s: %w", table, err)
	}

	source := bigquery.NewReaderSource(bytes.NewReader(data))
	source.SourceFormat = bigquery.JSON
	source.Schema = toBigQuerySchema(schema)

	loader := c.table(table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

func (c *bigQueryClient) Merge(ctx context.Context, sql string) (int64, error) {
	query := c.bq.Query(sql)
	job, err := query.Run(ctx)
	if err != nil {
		return 0, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, err
	}
	if err := status.Err(); err != nil {
		return 0, err
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

func (c *bigQueryClient) DeleteTable(ctx context.Context, table string) error {
	if err := c.table(table).Delete(ctx); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (c *bigQueryClient) Close() error {
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404
	}
	return false
}

func toBigQuerySchema(schema TableSchema) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema))
	for _, f := range schema {
		out = append(out, &bigquery.FieldSchema{
			Name: f.Name,
			Type: toBigQueryType(f.Type),
		})
	}
	return out
}

func toBigQueryType(t FieldType) bigquery.FieldType {
	switch t {
	case FieldInteger:
		return bigquery.IntegerFieldType
	case FieldFloat:
		return bigquery.FloatFieldType
	case FieldBoolean:
		return bigquery.BooleanFieldType
	case FieldTimestamp:
		return bigquery.TimestampFieldType
	}
	return bigquery.StringFieldType
}

// encodeNDJSON writes rows as newline-delimited JSON for a reader-source
// load job. Nil values are omitted; BigQuery lands missing fields as NULL.
func encodeNDJSON(rows []map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		line := make(map[string]interface{}, len(row))
		for name, value := range row {
			if value == nil {
				continue
			}
			if ts, ok := value.(time.Time); ok {
				line[name] = ts.UTC().Format(time.RFC3339Nano)
				continue
			}
			line[name] = value
		}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
