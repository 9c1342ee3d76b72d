// Package secrets loads the single process-lifetime secret blob: the chain
// network alias, the RPC project id, the fleet's HD-wallet mnemonic, and the
// trusted withdrawal address for sweeps.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/kjannette/ethmatic-backend/internal/config"
)

const (
	keyNetworkAlias          = "network_alias"
	keyRPCProjectID          = "rpc_project_id"
	keyMnemonic              = "mnemonic"
	keyTrustedWithdrawalAddr = "trusted_withdrawal_addr"
)

type Blob struct {
	NetworkAlias          string
	RPCProjectID          string
	Mnemonic              string
	TrustedWithdrawalAddr string
}

type Store struct {
	cfg    *config.Config
	client *api.Client

	mu     sync.Mutex
	cached *Blob
}

func NewStore(cfg *config.Config) (*Store, error) {
	s := &Store{cfg: cfg}

	if cfg.VaultEnabled {
		vaultCfg := api.DefaultConfig()
		vaultCfg.Address = cfg.VaultAddr

		client, err := api.NewClient(vaultCfg)
		if err != nil {
			return nil, fmt.Errorf("create vault client: %w", err)
		}
		client.SetToken(cfg.VaultToken)
		s.client = client
	}

	return s, nil
}

// Load returns the secret blob, fetching it at most once per process.
func (s *Store) Load(ctx context.Context) (*Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}

	blob, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.cached = blob
	return blob, nil
}

func (s *Store) fetch(ctx context.Context) (*Blob, error) {
	if !s.cfg.VaultEnabled {
		// Development fallback: the same keys, uppercased, from env.
		return &Blob{
			NetworkAlias:          os.Getenv("NETWORK_ALIAS"),
			RPCProjectID:          os.Getenv("RPC_PROJECT_ID"),
			Mnemonic:              os.Getenv("MNEMONIC"),
			TrustedWithdrawalAddr: os.Getenv("TRUSTED_WITHDRAWAL_ADDR"),
		}, nil
	}

	secret, err := s.client.Logical().ReadWithContext(ctx, s.cfg.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("read vault path %s: %w", s.cfg.VaultPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at vault path %s", s.cfg.VaultPath)
	}

	// KV-v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	blob := &Blob{
		NetworkAlias:          str(data, keyNetworkAlias),
		RPCProjectID:          str(data, keyRPCProjectID),
		Mnemonic:              str(data, keyMnemonic),
		TrustedWithdrawalAddr: str(data, keyTrustedWithdrawalAddr),
	}
	if blob.Mnemonic == "" {
		return nil, fmt.Errorf("secret blob is missing %q", keyMnemonic)
	}
	return blob, nil
}

func str(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
