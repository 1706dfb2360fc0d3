package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
)

type Course struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"` // major currency units, e.g. 499.00
	InstructorID string    `json:"instructor_id"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// IsFree reports whether the course can be enrolled into without payment.
func (c Course) IsFree() bool {
	return c.Price <= 0
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description"`
	Price        float64 `json:"price" validate:"gte=0"`
	InstructorID string  `json:"instructor_id" validate:"required,uuid4"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}
