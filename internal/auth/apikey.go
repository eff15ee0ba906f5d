package auth

import (
	"crypto/subtle"

	"github.com/HMB-research/fql/internal/config"
)

// KeyStore holds the static API keys from configuration. Lookups compare in
// constant time.
type KeyStore struct {
	enabled bool
	keys    []config.APIKey
}

// NewKeyStore builds a key store from the auth configuration.
func NewKeyStore(cfg config.AuthConfig) *KeyStore {
	keys := make([]config.APIKey, len(cfg.APIKeys))
	copy(keys, cfg.APIKeys)
	for i := range keys {
		if keys[i].Role == "" {
			keys[i].Role = RoleReader
		}
	}
	return &KeyStore{enabled: cfg.Enabled, keys: keys}
}

// Enabled reports whether authentication is turned on.
func (s *KeyStore) Enabled() bool {
	return s.enabled
}

// Lookup finds the entry matching the presented key.
func (s *KeyStore) Lookup(key string) (config.APIKey, bool) {
	for _, entry := range s.keys {
		if subtle.ConstantTimeCompare([]byte(entry.Key), []byte(key)) == 1 {
			return entry, true
		}
	}
	return config.APIKey{}, false
}
