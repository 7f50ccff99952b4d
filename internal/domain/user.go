package domain

// User is a record of the user table. Fields beyond the key pair are free-form.
type User struct {
	UserID    string
	CreatedAt string
	Fields    map[string]any
}

// Record returns the user as one flat attribute map, key attributes included.
func (u User) Record() map[string]any {
	out := make(map[string]any, len(u.Fields)+2)
	for k, v := range u.Fields {
		out[k] = v
	}
	out["userId"] = u.UserID
	out["createdAt"] = u.CreatedAt
	return out
}
