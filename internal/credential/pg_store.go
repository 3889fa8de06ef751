package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps credentials in oauth_credentials with both tokens encrypted.
type PgStore struct {
	pool   *pgxpool.Pool
	cipher *Cipher
}

func NewPgStore(pool *pgxpool.Pool, cipher *Cipher) *PgStore {
	return &PgStore{pool: pool, cipher: cipher}
}

func (s *PgStore) Get(ctx context.Context, owner uuid.UUID) (*OAuthCredential, error) {
	var (
		c               OAuthCredential
		access, refresh string
		expiry          *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, access_token, refresh_token, expiry, scopes, updated_at
		FROM oauth_credentials
		WHERE owner_id = $1
	`, owner).Scan(&c.OwnerID, &access, &refresh, &expiry, &c.Scopes, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if c.AccessToken, err = s.cipher.Decrypt(access); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if refresh != "" {
		if c.RefreshToken, err = s.cipher.Decrypt(refresh); err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
	}
	if expiry != nil {
		c.Expiry = *expiry
	}

	return &c, nil
}

func (s *PgStore) Save(ctx context.Context, c OAuthCredential) error {
	access, err := s.cipher.Encrypt(c.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	var refresh string
	if c.RefreshToken != "" {
		if refresh, err = s.cipher.Encrypt(c.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	var expiry *time.Time
	if !c.Expiry.IsZero() {
		expiry = &c.Expiry
	}
	scopes := c.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO oauth_credentials (owner_id, access_token, refresh_token, expiry, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (owner_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expiry = EXCLUDED.expiry,
		    scopes = EXCLUDED.scopes,
		    updated_at = now()
	`, c.OwnerID, access, refresh, expiry, scopes)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
