package tools

import (
	"context"
	"time"
)

// CurrentDate reports today's date. The clock is injectable for tests.
type CurrentDate struct {
	Now func() time.Time
}

func NewCurrentDate() *CurrentDate {
	return &CurrentDate{Now: time.Now}
}

func (d *CurrentDate) Spec() Spec {
	return Spec{
		Name:        "current_date",
		Description: "Look up today's date in YYYY-MM-DD format.",
	}
}

func (d *CurrentDate) Handle(ctx context.Context, args map[string]any) (string, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return now().UTC().Format("2006-01-02"), nil
}
