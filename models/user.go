package models

import "time"

// RoleAdmin is the organization role allowed to own automatic incidents
const RoleAdmin = "admin"

// Organization is a tenant of the platform
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Plan string `json:"plan"`
}

// User is a member of an organization
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
