package common

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const tokenInfo = "mpcauction/party-token/v1/"

// DeriveToken derives the bearer token of the party at partyURL from a
// secret shared by the operator. Trailing slashes are ignored.
func DeriveToken(secret, partyURL string) (string, error) {
	info := []byte(tokenInfo + strings.TrimRight(partyURL, "/"))
	kdf := hkdf.New(sha256.New, []byte(secret), nil, info)

	token := make([]byte, 16)
	if _, err := io.ReadFull(kdf, token); err != nil {
		return "", err
	}
	return hex.EncodeToString(token), nil
}

// TokensFor returns the bearer token of every party in roster. Explicit
// tokens win over derived ones; parties without either get none.
func (c *Config) TokensFor(roster []string) (map[string]string, error) {
	tokens := make(map[string]string, len(roster))
	for _, party := range roster {
		party = strings.TrimRight(party, "/")
		if token := c.explicitToken(party); token != "" {
			tokens[party] = token
			continue
		}
		if c.TokenSecret == "" {
			continue
		}
		token, err := DeriveToken(c.TokenSecret, party)
		if err != nil {
			return nil, err
		}
		tokens[party] = token
	}
	return tokens, nil
}

// OwnToken is the token a party daemon requires from its callers.
func (c *Config) OwnToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	if c.TokenSecret == "" || c.PublicURL == "" {
		return "", nil
	}
	return DeriveToken(c.TokenSecret, c.PublicURL)
}

func (c *Config) explicitToken(party string) string {
	for url, token := range c.Tokens {
		if strings.TrimRight(url, "/") == party {
			return token
		}
	}
	return ""
}
