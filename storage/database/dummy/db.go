package dummydb

import (
	"sync"

	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/payment"
	"github.com/trezcool/malipo/core/user"
)

type (
	DB struct {
		user       *userTable
		course     *courseTable
		payment    *paymentTable
		enrollment *enrollmentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Payment // keyed by gateway order id
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment // keyed by userID + "/" + courseID
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		course:     &courseTable{table: make(map[string]*course.Course)},
		payment:    &paymentTable{table: make(map[string]*payment.Payment)},
		enrollment: &enrollmentTable{table: make(map[string]*enrollment.Enrollment)},
	}
	return db, nil
}
