package common

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
http_addr: ":9001"
public_url: "http://party1:9001"
parties:
  - "http://party1:9001"
  - "http://party2:9001/"
  - "http://party3:9001"
threshold: 2
token_secret: "operator secret"
tokens:
  "http://party3:9001": "explicit"
request_timeout: 5s
log:
  format: json
  level: debug
comparison:
  l: 4
  k: 2
  prime: "0xa3"
  repetitions: 1
  strategy: zstack
postgres:
  host: db
  database: auctions
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9001", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	// Defaults survive for fields the file leaves out.
	assert.Equal(t, string(protocol.AbortOnPartyError), cfg.Comparison.FailurePolicy)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "db", cfg.Postgres.Host)

	params, err := cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, int64(163), params.Prime.Int64())
	assert.Equal(t, protocol.ZStackStrategy, params.Strategy)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Params()
	require.NoError(t, err)

	require.Error(t, cfg.Validate(), "no parties")

	cfg.Parties = []string{"http://a", "http://b"}
	cfg.Threshold = 2
	require.ErrorIs(t, cfg.Validate(), crypto.ErrInvalidParameters)

	cfg.Comparison.Prime = "not a number"
	_, err = cfg.Params()
	require.Error(t, err)
}

func TestTokens(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	tokens, err := cfg.TokensFor(cfg.Parties)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, "explicit", tokens["http://party3:9001"])
	assert.Len(t, tokens["http://party1:9001"], 32)
	assert.NotEqual(t, tokens["http://party1:9001"], tokens["http://party2:9001"])

	own, err := cfg.OwnToken()
	require.NoError(t, err)
	assert.Equal(t, tokens["http://party1:9001"], own)

	again, err := DeriveToken("operator secret", "http://party2:9001/")
	require.NoError(t, err)
	assert.Equal(t, tokens["http://party2:9001"], again)

	other, err := DeriveToken("another secret", "http://party2:9001")
	require.NoError(t, err)
	assert.NotEqual(t, again, other)

	cfg.Token = "fixed"
	own, err = cfg.OwnToken()
	require.NoError(t, err)
	assert.Equal(t, "fixed", own)

	cfg.TokenSecret = ""
	tokens, err = cfg.TokensFor(cfg.Parties)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"http://party3:9001": "explicit"}, tokens)
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := SetupLogger(&buf, "json", "warn")
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = SetupLogger(&buf, "xml", "info")
	require.Error(t, err)
	_, err = SetupLogger(&buf, "text", "loud")
	require.Error(t, err)
	_, err = SetupLogger(&buf, "", "")
	require.NoError(t, err)
}
