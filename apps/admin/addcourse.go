package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
)

func (cli *commandLine) addCourse(title, description, instructorID string, price float64) error {
	ctx := context.Background()

	instr, err := cli.usrRepo.GetUserByID(ctx, instructorID)
	if err != nil {
		return err
	}
	if !instr.IsTeacher() && !instr.IsAdmin() {
		return fmt.Errorf("user %s cannot instruct courses", instr.Email)
	}

	now := time.Now().UTC()
	crs := course.Course{
		ID:           uuid.New().String(),
		Title:        core.CleanString(title),
		Description:  core.CleanString(description),
		Price:        price,
		InstructorID: instr.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err = cli.crsRepo.CreateCourse(ctx, crs); err != nil {
		return err
	}
	fmt.Printf("course %q created: %s\n", crs.Title, crs.ID)
	return nil
}
