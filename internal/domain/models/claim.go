package models

// Claim is a typed attribute consumed by authorization checks.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UserClaim is a row of the claims table, keyed by user ID and encoded claim type.
type UserClaim struct {
	UserID     string `json:"user_id" table:"UserId"`
	ClaimType  string `json:"claim_type" table:"ClaimType"`
	ClaimValue string `json:"claim_value" table:"ClaimValue"`
}

// Claim returns the claim carried by the row.
func (c UserClaim) Claim() Claim {
	return Claim{Type: c.ClaimType, Value: c.ClaimValue}
}
