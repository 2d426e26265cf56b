package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/etnz/drivepick/gate"
	"github.com/stretchr/testify/assert"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		res      gate.Result
		err      error
		wantCode int
		wantOut  string
	}{
		{
			name:     "picked",
			res:      gate.Result{State: gate.Fired, Picked: true},
			wantCode: 0,
		},
		{
			name:     "dismissed",
			res:      gate.Result{State: gate.Fired},
			wantCode: 0,
			wantOut:  "No folder picked.\n",
		},
		{
			name:     "interrupted",
			res:      gate.Result{State: gate.Cancelled},
			err:      fmt.Errorf("%w: %w", gate.ErrCancelled, context.Canceled),
			wantCode: 0,
			wantOut:  "Pick cancelled.\n",
		},
		{
			name:     "timed out",
			res:      gate.Result{State: gate.Cancelled},
			err:      fmt.Errorf("%w: %w", gate.ErrCancelled, context.DeadlineExceeded),
			wantCode: 1,
			wantOut:  "Error: pick cancelled: context deadline exceeded\n",
		},
		{
			name:     "failed",
			res:      gate.Result{State: gate.Failed},
			err:      fmt.Errorf("%w: %w", gate.ErrAuthorizationDenied, errors.New("access_denied")),
			wantCode: 1,
			wantOut:  "Error: authorization denied: access_denied\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.wantCode, report(&out, tt.res, tt.err))
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}
