package domain

import "time"

type User struct {
	ID          string
	Email       string
	Name        string
	AuthSubject *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Address struct {
	ID         string
	UserID     string
	FullName   string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
