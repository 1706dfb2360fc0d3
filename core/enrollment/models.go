package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Enrollment grants a user access to a course. At most one row exists
// per (user, course) pair; creation is find-or-create so the paid
// settlement triggers may race without producing duplicates.
type Enrollment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// EnrollRequest contains information needed to enroll into a course.
type EnrollRequest struct {
	CourseID string `json:"courseId" validate:"required,uuid4"`
}

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(er)
}

// EnrollResult is returned by the free-enrollment path. A paid course is
// not enrolled here; the caller is redirected to the payment flow.
type EnrollResult struct {
	Enrollment      *Enrollment `json:"enrollment,omitempty"`
	RequiresPayment bool        `json:"requiresPayment"`
	CourseID        string      `json:"courseId,omitempty"`
	Amount          float64     `json:"amount,omitempty"`
	Currency        string      `json:"currency,omitempty"`
}
