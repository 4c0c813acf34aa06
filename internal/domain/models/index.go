package models

// IndexEntry is the single-column row of every secondary index table
// (username, email, login provider-key): it points at the owning user.
type IndexEntry struct {
	UserID string `json:"user_id" table:"UserId"`
}

// HydratedUser is a user together with all of its child rows.
type HydratedUser struct {
	User   *User       `json:"user"`
	Roles  []string    `json:"roles"`
	Claims []Claim     `json:"claims"`
	Logins []LoginInfo `json:"logins"`
}
