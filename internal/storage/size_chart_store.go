package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aioutlet/product-service/internal/catalog"
)

type sizeChartRowRecord struct {
	Label        string            `json:"label"`
	Measurements map[string]string `json:"measurements"`
}

// CreateSizeChart implements catalog.SizeChartStore.
func (s *ProductStore) CreateSizeChart(ctx context.Context, chart *catalog.SizeChart) error {
	if chart.ID == "" {
		chart.ID = uuid.New().String()
	}

	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = time.Now().UTC()
	}

	records := make([]sizeChartRowRecord, 0, len(chart.Rows))
	for _, row := range chart.Rows {
		records = append(records, sizeChartRowRecord{Label: row.Label, Measurements: row.Measurements})
	}

	rows, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to serialize size chart rows: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO size_charts (id, name, size_type, rows, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		chart.ID, chart.Name, chart.SizeType, rows, chart.CreatedAt, chart.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert size chart %s: %w", chart.ID, classifyError(err))
	}

	return nil
}

// GetSizeChart implements catalog.SizeChartStore.
func (s *ProductStore) GetSizeChart(ctx context.Context, id string) (*catalog.SizeChart, error) {
	chart, err := scanSizeChart(s.conn.QueryRowContext(ctx,
		`SELECT id, name, size_type, rows, created_at, created_by FROM size_charts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: size chart %s", catalog.ErrNotFound, id)
		}

		return nil, fmt.Errorf("failed to get size chart %s: %w", id, classifyError(err))
	}

	return chart, nil
}

// ListSizeCharts implements catalog.SizeChartStore.
func (s *ProductStore) ListSizeCharts(ctx context.Context) ([]catalog.SizeChart, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, size_type, rows, created_at, created_by FROM size_charts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list size charts: %w", classifyError(err))
	}

	defer func() {
		_ = rows.Close()
	}()

	charts := []catalog.SizeChart{}

	for rows.Next() {
		chart, err := scanSizeChart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan size chart row: %w", err)
		}

		charts = append(charts, *chart)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate size chart rows: %w", err)
	}

	return charts, nil
}

func scanSizeChart(scanner rowScanner) (*catalog.SizeChart, error) {
	var (
		chart    catalog.SizeChart
		rowsJSON []byte
	)

	err := scanner.Scan(&chart.ID, &chart.Name, &chart.SizeType, &rowsJSON, &chart.CreatedAt, &chart.CreatedBy)
	if err != nil {
		return nil, err
	}

	chart.CreatedAt = chart.CreatedAt.UTC()

	var records []sizeChartRowRecord
	if err := json.Unmarshal(rowsJSON, &records); err != nil {
		return nil, fmt.Errorf("failed to decode rows of size chart %s: %w", chart.ID, err)
	}

	chart.Rows = make([]catalog.SizeChartRow, 0, len(records))
	for _, record := range records {
		chart.Rows = append(chart.Rows, catalog.SizeChartRow{Label: record.Label, Measurements: record.Measurements})
	}

	return &chart, nil
}
