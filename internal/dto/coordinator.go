package dto

import "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"

// CoordinatorRequest creates or replaces a directory entry.
type CoordinatorRequest struct {
	Course   string                   `json:"course" validate:"required,max=200"`
	Director string                   `json:"director" validate:"required,max=200"`
	Email    string                   `json:"email" validate:"required,email"`
	UserID   *int64                   `json:"userId" validate:"omitempty,gt=0"`
	Status   models.CoordinatorStatus `json:"status" validate:"omitempty,oneof=approved pending rejected"`
}

// CoordinatorQuery filters directory listings.
type CoordinatorQuery struct {
	Status string `form:"status"`
	Course string `form:"course"`
}
