package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q, expected RFC 3339", *s)
	}
	t = t.UTC()
	return &t, nil
}

func newEventID() string {
	return "evt-" + uuid.New().String()
}
