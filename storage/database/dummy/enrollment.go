package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core/enrollment"
)

type enrollmentRepository struct {
	db *enrollmentTable
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db.enrollment}
}

func enrollmentKey(userID, courseID string) string {
	return userID + "/" + courseID
}

func (repo *enrollmentRepository) EnsureEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := enrollmentKey(userID, courseID)
	if enr, ok := repo.db.table[key]; ok {
		return *enr, nil
	}
	now := time.Now().UTC()
	enr := enrollment.Enrollment{
		ID:        uuid.New().String(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    enrollment.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.db.table[key] = &enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, userID, courseID string) (enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.table[enrollmentKey(userID, courseID)]; ok {
		return *enr, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) QueryEnrollmentsByUser(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var enrs []enrollment.Enrollment
	for _, enr := range repo.db.table {
		if enr.UserID == userID {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].CreatedAt.After(enrs[j].CreatedAt) })
	return enrs, nil
}
