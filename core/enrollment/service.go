package enrollment

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
)

var (
	// errors
	ErrNotFound        = errors.New("enrollment not found")
	ErrAlreadyEnrolled = errors.New("already enrolled in this course")
)

type (
	Repository interface {
		// EnsureEnrollment atomically finds or creates the enrollment for
		// (userID, courseID). Concurrent calls for the same pair must all
		// succeed and converge to a single row; the storage layer relies on
		// the unique (user_id, course_id) constraint, not locks.
		EnsureEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		QueryEnrollmentsByUser(ctx context.Context, userID string) ([]Enrollment, error)
	}

	Service struct {
		repo    Repository
		crsRepo course.Repository
	}
)

func NewService(repo Repository, crsRepo course.Repository) *Service {
	return &Service{repo: repo, crsRepo: crsRepo}
}

// Enroll performs the free-enrollment path: a free course is enrolled
// immediately; a paid course yields a RequiresPayment result pointing the
// caller at the payment flow.
func (svc *Service) Enroll(ctx context.Context, userID, courseID string) (EnrollResult, error) {
	crs, err := svc.crsRepo.GetCourseByID(ctx, courseID)
	if err != nil {
		return EnrollResult{}, err
	}

	if _, err = svc.repo.GetEnrollment(ctx, userID, courseID); err == nil {
		return EnrollResult{}, ErrAlreadyEnrolled
	} else if err != ErrNotFound {
		return EnrollResult{}, pkgerrors.Wrap(err, "getting enrollment")
	}

	if !crs.IsFree() {
		return EnrollResult{
			RequiresPayment: true,
			CourseID:        crs.ID,
			Amount:          crs.Price,
			Currency:        core.Conf.DefaultCurrency,
		}, nil
	}

	enr, err := svc.repo.EnsureEnrollment(ctx, userID, courseID)
	if err != nil {
		return EnrollResult{}, pkgerrors.Wrap(err, "creating enrollment")
	}
	return EnrollResult{Enrollment: &enr}, nil
}

func (svc *Service) QueryByUser(ctx context.Context, userID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByUser(ctx, userID)
}
