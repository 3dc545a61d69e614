package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/membership-api/internal/models"
	"github.com/google/uuid"
)

const oidcConfigColumns = `id, provider, issuer, domain, client_id, client_secret, redirect_uri, jwks_url,
		created_at, updated_at`

// OIDCConfigRepository handles OIDC configuration database operations
type OIDCConfigRepository struct {
	db Queryer
}

// NewOIDCConfigRepository creates a new OIDC config repository
func NewOIDCConfigRepository(db Queryer) *OIDCConfigRepository {
	return &OIDCConfigRepository{db: db}
}

// Create stores a new provider configuration, assigning an id when none is set.
func (r *OIDCConfigRepository) Create(ctx context.Context, config *models.OIDCConfig) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	query := `
		INSERT INTO oidc_config (id, provider, issuer, domain, client_id, client_secret, redirect_uri,
			jwks_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING created_at, updated_at
	`
	var stamps struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &stamps, query,
		config.ID,
		config.Provider,
		config.Issuer,
		config.Domain,
		config.ClientID,
		config.ClientSecret,
		config.RedirectURI,
		config.JWKSUrl,
		time.Now().UTC(),
	)
	if err != nil {
		return classify("create OIDC config", err)
	}
	config.CreatedAt, config.UpdatedAt = stamps.CreatedAt, stamps.UpdatedAt
	return nil
}

// GetByProvider returns the configuration for provider, or ErrNotFound.
func (r *OIDCConfigRepository) GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error) {
	config := &models.OIDCConfig{}
	err := r.db.GetContext(ctx, config,
		`SELECT `+oidcConfigColumns+` FROM oidc_config WHERE provider = $1`, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("OIDC config for provider %s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return nil, classify("get OIDC config", err)
	}
	return config, nil
}

// GetAll retrieves all OIDC configurations
func (r *OIDCConfigRepository) GetAll(ctx context.Context) ([]*models.OIDCConfig, error) {
	configs := []*models.OIDCConfig{}
	err := r.db.SelectContext(ctx, &configs,
		`SELECT `+oidcConfigColumns+` FROM oidc_config ORDER BY provider`)
	if err != nil {
		return nil, classify("list OIDC configs", err)
	}
	return configs, nil
}

// Update replaces the mutable fields of the configuration for config.Provider.
func (r *OIDCConfigRepository) Update(ctx context.Context, config *models.OIDCConfig) error {
	query := `
		UPDATE oidc_config
		SET issuer = $2, domain = $3, client_id = $4, client_secret = $5, redirect_uri = $6, jwks_url = $7, updated_at = $8
		WHERE provider = $1
		RETURNING updated_at
	`
	err := r.db.GetContext(ctx, &config.UpdatedAt, query,
		config.Provider,
		config.Issuer,
		config.Domain,
		config.ClientID,
		config.ClientSecret,
		config.RedirectURI,
		config.JWKSUrl,
		time.Now().UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return classify("update OIDC config", err)
	}
	return nil
}

// Delete deletes an OIDC configuration by provider
func (r *OIDCConfigRepository) Delete(ctx context.Context, provider string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oidc_config WHERE provider = $1`, provider)
	if err != nil {
		return classify("delete OIDC config", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
