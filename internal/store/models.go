package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Note carries the flat tag-name projection used by every read path. Join
// rows never leave this package.
type Note struct {
	ID        int64
	OwnerID   string
	Title     string
	Body      string
	CreatedAt time.Time
	Tags      []string
}
