package marketdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/depgraph/internal/value"
	"github.com/rs/zerolog"
)

// SnapshotProvider serves availability from the market_data table of a snapshot database
// (see database.SnapshotSchema). Rows for the same value and target are tried in insertion order.
type SnapshotProvider struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotProvider creates a provider over an open snapshot database.
func NewSnapshotProvider(db *sql.DB, log zerolog.Logger) *SnapshotProvider {
	return &SnapshotProvider{
		db:  db,
		log: log.With().Str("component", "marketdata_snapshot").Logger(),
	}
}

// Put records an available value.
func (p *SnapshotProvider) Put(ctx context.Context, valueName string, target value.ComputationTarget, properties value.ValueProperties, source string) error {
	if !properties.IsConcrete() {
		return fmt.Errorf("marketdata: %s on %s has wildcard properties %s", valueName, target, properties)
	}
	encoded, err := json.Marshal(properties.ToMap())
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO market_data (value_name, target, properties, source, updated_at) VALUES (?, ?, ?, ?, ?)`,
		valueName, target.Key(), string(encoded), source, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s on %s: %w", valueName, target, err)
	}
	return nil
}

// GetAvailability implements AvailabilityProvider.
func (p *SnapshotProvider) GetAvailability(ctx context.Context, requirement value.ValueRequirement) (value.ValueSpecification, bool, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT properties FROM market_data WHERE value_name = ? AND target = ? ORDER BY id`,
		requirement.ValueName, requirement.Target.Key(),
	)
	if err != nil {
		return value.ValueSpecification{}, false, fmt.Errorf("failed to query market data for %s: %w", requirement, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return value.ValueSpecification{}, false, fmt.Errorf("failed to scan market data row: %w", err)
		}
		var decoded map[string][]string
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			p.log.Warn().
				Err(err).
				Str("requirement", requirement.Key()).
				Msg("Skipping market data row with unreadable properties")
			continue
		}
		properties := value.PropertiesFromMap(decoded)
		if !properties.IsConcrete() || !properties.Satisfies(requirement.Constraints) {
			continue
		}
		return value.NewSpecification(requirement.ValueName, requirement.Target, properties, value.MarketDataFunction), true, nil
	}
	if err := rows.Err(); err != nil {
		return value.ValueSpecification{}, false, fmt.Errorf("failed to read market data rows: %w", err)
	}
	return value.ValueSpecification{}, false, nil
}
