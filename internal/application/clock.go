package application

import (
	"time"

	"github.com/google/uuid"
)

// SystemClock implementasi default, pakai time.Now() dalam UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator issues random v4 ids for reports, issues and audit events.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
