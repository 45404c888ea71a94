package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("get race result", 2023, 4, cause)

	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "get race result season=2023 round=4: upstream failure: connection refused", err.Error())
}

func TestErrorMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("sync: %w", NotFound("get season", 1999))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "sync: get season season=1999: not found", err.Error())

	var ae *Error
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, 1999, ae.Season)
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"upstream", Upstream("x", 0, 0, nil), true},
		{"format", DataFormat("x", 2020, 1, errors.New("bad laps")), true},
		{"persistence", Persistence("x", errors.New("disk full")), false},
		{"not found", NotFound("x", 2020), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}
