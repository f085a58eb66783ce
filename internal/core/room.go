package core

// Room is an opaque namespace users enter and leave.
// It comes into existence the first time a user successfully enters it.
type Room struct {
	ID string `json:"id"`
}

// User is a chat participant. ID is the identity key; the name fields are informational.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// DisplayName returns a human-readable name, falling back to the id.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.ID
	}
}
