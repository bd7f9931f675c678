package domain

type User struct {
	Id           string
	Username     string
	PasswordHash string
}

// Identity is the resolved identity a connection carries into a room.
// Anonymous connections have an empty UserId and a client-chosen display name.
type Identity struct {
	UserId      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl,omitempty"`
}

func (i Identity) Anonymous() bool {
	return i.UserId == ""
}
