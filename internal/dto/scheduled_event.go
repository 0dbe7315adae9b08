package dto

import "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"

// RecipientInput identifies one addressee. Either userId or email is required.
type RecipientInput struct {
	UserID      int64                 `json:"userId" validate:"gte=0"`
	Name        string                `json:"name" validate:"max=200"`
	Email       string                `json:"email" validate:"omitempty,email"`
	Group       models.RecipientGroup `json:"group" validate:"required,oneof=providers coordinators"`
	DirectorKey string                `json:"directorKey"`
}

// CreateEventRequest payload for scheduling an announcement.
type CreateEventRequest struct {
	Date       string           `json:"date" validate:"required"`
	Title      string           `json:"title" validate:"required,max=200"`
	Message    *string          `json:"message" validate:"omitempty,max=10000"`
	Recipients []RecipientInput `json:"recipients" validate:"required,min=1,dive"`
}

// UpdateEventRequest replaces the mutable fields of an event.
type UpdateEventRequest struct {
	Title      string           `json:"title" validate:"required,max=200"`
	Message    *string          `json:"message" validate:"omitempty,max=10000"`
	Recipients []RecipientInput `json:"recipients" validate:"required,min=1,dive"`
}

// MyEventsQuery restricts the caller's events to one recipient group.
type MyEventsQuery struct {
	Group models.RecipientGroup `form:"group"`
}
