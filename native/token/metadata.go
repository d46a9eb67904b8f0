package token

import (
	"fmt"
	"strings"
)

// Metadata describes the fungible unit served to wallets and explorers.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Icon     string `json:"icon,omitempty"`
}

// Validate checks the required metadata fields are present.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("token: metadata name required")
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return fmt.Errorf("token: metadata symbol required")
	}
	return nil
}

type storedMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
	Icon     string
}

// SetMetadata persists the token metadata.
func (l *Ledger) SetMetadata(meta Metadata) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("token: ledger not initialised")
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	stored := storedMetadata{
		Name:     strings.TrimSpace(meta.Name),
		Symbol:   strings.TrimSpace(meta.Symbol),
		Decimals: meta.Decimals,
		Icon:     meta.Icon,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.KVPut(metadataKey, &stored)
}

// Metadata returns the persisted token metadata. The boolean reports
// whether metadata has been set.
func (l *Ledger) Metadata() (Metadata, bool, error) {
	if l == nil || l.store == nil {
		return Metadata{}, false, fmt.Errorf("token: ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var stored storedMetadata
	ok, err := l.store.KVGet(metadataKey, &stored)
	if err != nil || !ok {
		return Metadata{}, ok, err
	}
	return Metadata{
		Name:     stored.Name,
		Symbol:   stored.Symbol,
		Decimals: stored.Decimals,
		Icon:     stored.Icon,
	}, true, nil
}
