// Package keys derives partition and row keys for every identity table.
//
// Free text that may violate the table key grammar (claim types, role names,
// provider keys, emails) is passed through EncodeKey, a reversible variant of
// standard base64 with '/' replaced by '-'.
package keys

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bravo68web/tableidentity/internal/tablestore"
)

// providerSeparator joins a login provider name and its encoded key in the
// provider-key index partition key. The encoded alphabet never contains it.
const providerSeparator = "_"

// EncodeKey makes s safe for use as a partition or row key.
func EncodeKey(s string) string {
	return strings.ReplaceAll(base64.StdEncoding.EncodeToString([]byte(s)), "/", "-")
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(key, "-", "/"))
	if err != nil {
		return "", fmt.Errorf("decode key %q: %w", key, err)
	}
	return string(raw), nil
}

// User returns the key of the user row: both halves are the user id.
func User(userID string) (pk, rk string) {
	return userID, userID
}

// Claim returns the key of a claim row. One claim per type per user.
func Claim(userID, claimType string) (pk, rk string) {
	return userID, EncodeKey(claimType)
}

// Role returns the key of a role membership row.
func Role(userID, roleName string) (pk, rk string) {
	return userID, EncodeKey(roleName)
}

// Login returns the key of a login row.
func Login(userID, providerKey string) (pk, rk string) {
	return userID, EncodeKey(providerKey)
}

// UsernameIndex returns the key of a username index row. The username is
// duplicated into the row key so prefix scans over partitions stay cheap.
func UsernameIndex(username string) (pk, rk string) {
	return username, username
}

// EmailIndex returns the key of an email index row.
func EmailIndex(email string) (pk, rk string) {
	return EncodeKey(email), ""
}

// LoginProviderKeyIndex returns the key of a login provider-key index row.
func LoginProviderKeyIndex(loginProvider, providerKey string) (pk, rk string) {
	return loginProvider + providerSeparator + EncodeKey(providerKey), ""
}

// ParseLoginProviderKeyIndex splits a provider-key index partition key back
// into the provider name and the decoded provider key. The split happens at
// the last separator, so provider names may themselves contain '_'.
func ParseLoginProviderKeyIndex(partitionKey string) (loginProvider, providerKey string, err error) {
	i := strings.LastIndex(partitionKey, providerSeparator)
	if i < 0 {
		return "", "", fmt.Errorf("%w: %q is not a provider-key index key", tablestore.ErrInvalidKey, partitionKey)
	}
	providerKey, err = DecodeKey(partitionKey[i+1:])
	if err != nil {
		return "", "", err
	}
	return partitionKey[:i], providerKey, nil
}

// ValidateUsername checks that a username can be used verbatim as an index key.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty username", tablestore.ErrInvalidKey)
	}
	return tablestore.ValidateKey(username)
}
