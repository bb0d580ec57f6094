package models

// User is a placeholder account record; no endpoint exposes it yet
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type UserInput struct {
	Username string
	Password string
}
