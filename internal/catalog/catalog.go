// Package catalog reads the provider and add-on service directory the
// booking flow validates against, and caches currency rates for fee
// normalization. Both are external collaborators: this package never
// mutates them.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Provider kinds. A booking targets a doctor or a facility, never both.
const (
	KindDoctor   = "doctor"
	KindFacility = "facility"
)

// ErrProviderNotFound is returned for unknown or inactive providers.
var ErrProviderNotFound = errors.New("catalog: provider not found")

// Provider is a bookable doctor or facility.
type Provider struct {
	ID              uuid.UUID
	Name            string
	Kind            string
	ConsultationFee int64
	Currency        string
	Active          bool
}

// Service is an add-on service offered by a provider.
type Service struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Name       string
	Price      int64
	Active     bool
	Available  bool
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides read-only access to the provider directory.
type Repository struct {
	pool rowQuerier
}

func NewRepository(pool rowQuerier) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetProvider loads an active provider by id.
func (r *Repository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	query := `
		SELECT id, name, kind, consultation_fee, currency, active
		FROM providers
		WHERE id = $1
	`
	var p Provider
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Kind, &p.ConsultationFee, &p.Currency, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("catalog: load provider: %w", err)
	}
	if !p.Active {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

// ListServices returns every service of a provider, including inactive
// ones; the fee calculator decides what to exclude.
func (r *Repository) ListServices(ctx context.Context, providerID uuid.UUID) ([]Service, error) {
	query := `
		SELECT id, provider_id, name, price, active, available
		FROM provider_services
		WHERE provider_id = $1
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Price, &s.Active, &s.Available); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}
