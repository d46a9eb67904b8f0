package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
listen: ":9000"
state: "/tmp/fundd-state"
history: "/tmp/fundd-history.sqlite"
auth_secret: "test-secret"
identities:
  owner: owner.fund
  admin: admin.fund
  fund: treasury.fund
venue:
  endpoint: "http://venue:8080"
  account: fund.venue
  referral: partner.acct
  timeout: "5s"
basket:
  native_token: wrap.token
  assets:
    - symbol: ALPHA
      token_id: alpha.token
      pool_id: 1
    - symbol: BETA
      token_id: beta.token
      pool_id: 2
token:
  name: Basket Fund
  symbol: BFT
  initial_supply: "1000000"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("listen = %q, want :9000", cfg.ListenAddress)
	}
	if cfg.Venue.Timeout.Duration != 5*time.Second {
		t.Fatalf("venue timeout = %s, want 5s", cfg.Venue.Timeout.Duration)
	}
	if len(cfg.Basket.Assets) != 2 || cfg.Basket.Assets[1].PoolID != 2 {
		t.Fatalf("basket assets not decoded: %+v", cfg.Basket.Assets)
	}
	if cfg.Token.Decimals != 8 {
		t.Fatalf("token decimals default = %d, want 8", cfg.Token.Decimals)
	}
	if cfg.RateLimit.RequestsPerSecond != 20 || cfg.RateLimit.Burst != 40 {
		t.Fatalf("rate limit defaults = %+v", cfg.RateLimit)
	}
}

func TestLoadRejectsMissingVenue(t *testing.T) {
	contents := `
listen: ":9000"
auth_secret: secret
identities:
  owner: a
  admin: b
  fund: c
basket:
  native_token: wrap.token
  assets:
    - token_id: alpha.token
      pool_id: 1
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("expected error for missing venue endpoint")
	}
}

func TestLoadRejectsDuplicateAssets(t *testing.T) {
	contents := `
auth_secret: secret
identities:
  owner: a
  admin: b
  fund: c
venue:
  endpoint: "http://venue:8080"
  account: fund.venue
basket:
  native_token: wrap.token
  assets:
    - token_id: alpha.token
      pool_id: 1
    - token_id: alpha.token
      pool_id: 2
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("expected error for duplicate asset")
	}
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	contents := `
auth_secret: secret
venue:
  endpoint: "http://venue:8080"
  account: fund.venue
  timeout: "not-a-duration"
basket:
  native_token: wrap.token
  assets:
    - token_id: alpha.token
      pool_id: 1
identities:
  owner: a
  admin: b
  fund: c
`
	if _, err := Load(writeConfig(t, contents)); err == nil {
		t.Fatal("expected duration parse error")
	}
}
