package apiclient

import (
	"context"
	"time"
)

// Workout is one scheduled session between a coach and a student.
type Workout struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CoachID     string    `json:"coachId"`
	StudentID   string    `json:"studentId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Workouts lists the signed-in user's workouts. A coach sees every workout
// they run; a student sees their own.
func (c *Client) Workouts(ctx context.Context) ([]Workout, error) {
	var out []Workout
	if err := c.Get(ctx, PathWorkouts, &out); err != nil {
		return nil, err
	}
	return out, nil
}
