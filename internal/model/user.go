package model

import "time"

// Role distinguishes teachers from students.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// User is the locally mirrored profile of an identity-provider account.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SyncProfileRequest lets a client override the display name from its token.
type SyncProfileRequest struct {
	DisplayName string `json:"display_name" binding:"omitempty,min=1,max=100"`
}
