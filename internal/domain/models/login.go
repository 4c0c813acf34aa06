package models

// LoginInfo identifies an external login: the provider name and the key the
// provider uses for the account.
type LoginInfo struct {
	LoginProvider string `json:"login_provider"`
	ProviderKey   string `json:"provider_key"`
}

// UserLogin is a row of the logins table, keyed by user ID and encoded provider key.
type UserLogin struct {
	UserID        string `json:"user_id" table:"UserId"`
	LoginProvider string `json:"login_provider" table:"LoginProvider"`
	ProviderKey   string `json:"provider_key" table:"ProviderKey"`
}

// Info returns the provider/key pair of the row.
func (l UserLogin) Info() LoginInfo {
	return LoginInfo{LoginProvider: l.LoginProvider, ProviderKey: l.ProviderKey}
}
