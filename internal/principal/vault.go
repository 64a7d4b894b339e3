package principal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/retry"
)

// DefaultVaultRefresh is used when the configured refresh interval is zero.
const DefaultVaultRefresh = 5 * time.Minute

// VaultStore serves principals read from one Vault KV v2 secret. Each key of
// the secret is a principal ID; its value is either the bare credential or a
// JSON object in the principal file format:
//
//	billing  = sk-live-123
//	reporter = {"value":"sk-ro-456","permissions":["read"]}
type VaultStore struct {
	*MemoryStore

	client   *vaultapi.Client
	mount    string
	path     string
	interval time.Duration
	logger   observability.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewVaultStore connects to Vault and performs the initial load.
func NewVaultStore(ctx context.Context, cfg config.VaultConfig, logger observability.Logger) (*VaultStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	interval := cfg.RefreshInterval.Duration()
	if interval <= 0 {
		interval = DefaultVaultRefresh
	}

	s := &VaultStore{
		MemoryStore: NewMemoryStore(),
		client:      client,
		mount:       mount,
		path:        strings.Trim(cfg.Path, "/"),
		interval:    interval,
		logger:      logger.With(observability.Component("principal-vault-store")),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	err = retry.Do(ctx, retry.Policy{MaxAttempts: 3, InitialBackoff: 200 * time.Millisecond}, func() error {
		return s.Refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-reads the secret and swaps the principal set.
func (s *VaultStore) Refresh(ctx context.Context) error {
	fullPath := fmt.Sprintf("%s/data/%s", s.mount, s.path)
	secret, err := s.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, fullPath, err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("vault secret %s: %w", fullPath, ErrNotFound)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("vault secret %s has no data", fullPath)
	}

	now := time.Now()
	principals := make([]*Info, 0, len(data))
	for id, raw := range data {
		spec, err := decodeVaultEntry(id, raw)
		if err != nil {
			return fmt.Errorf("vault secret %s: %w", fullPath, err)
		}
		principals = append(principals, FromSpec(spec, now))
	}

	s.Replace(principals)
	s.logger.Debug("principals refreshed from vault",
		observability.String("path", fullPath),
		observability.Int("count", len(principals)),
	)
	return nil
}

func decodeVaultEntry(id string, raw interface{}) (config.PrincipalSpec, error) {
	str, ok := raw.(string)
	if !ok {
		return config.PrincipalSpec{}, fmt.Errorf("principal %q: value must be a string", id)
	}

	trimmed := strings.TrimSpace(str)
	if !strings.HasPrefix(trimmed, "{") {
		return config.PrincipalSpec{ID: id, Value: str}, nil
	}

	var entry struct {
		Value       string                 `json:"value"`
		Description string                 `json:"description"`
		Enabled     *bool                  `json:"enabled"`
		ExpiresAt   *time.Time             `json:"expiresAt"`
		Permissions []string               `json:"permissions"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return config.PrincipalSpec{}, fmt.Errorf("principal %q: %w", id, err)
	}
	if entry.Value == "" {
		return config.PrincipalSpec{}, fmt.Errorf("principal %q: missing value", id)
	}
	return config.PrincipalSpec{
		ID:          id,
		Value:       entry.Value,
		Description: entry.Description,
		Enabled:     entry.Enabled,
		ExpiresAt:   entry.ExpiresAt,
		Permissions: entry.Permissions,
		Metadata:    entry.Metadata,
	}, nil
}

// Start refreshes the principal set every interval until Close. Failed
// refreshes keep the previous set.
func (s *VaultStore) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warn("vault refresh failed, keeping previous principals", observability.Error(err))
				}
			}
		}
	}()
}

// Close stops the refresh loop started by Start.
func (s *VaultStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.Load() {
		<-s.doneCh
	}
	return nil
}
