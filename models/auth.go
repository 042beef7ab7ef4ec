// models/auth.go

package models

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=60"`
	LastName  string `json:"lastName" validate:"max=60"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role" validate:"omitempty,oneof=customer merchant"` // admins are never self-registered
	// Only for merchant signups
	BusinessName    string `json:"businessName,omitempty"`
	BusinessAddress string `json:"businessAddress,omitempty"`
	BusinessType    string `json:"businessType,omitempty"`
}

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	User      *User  `json:"user"`
	ExpiresIn int64  `json:"expiresIn"`
}

type FCMTokenRequest struct {
	Token string `json:"token" validate:"required"`
}
