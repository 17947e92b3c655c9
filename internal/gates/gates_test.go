// ABOUTME: Tests for input coercion rules and once-only gate resolution
// ABOUTME: Cancellation must stay distinguishable from an empty answer

package gates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceInput(t *testing.T) {
	tests := []struct {
		name    string
		kind    InputKind
		raw     string
		want    any
		wantErr bool
	}{
		{name: "number", kind: KindNumber, raw: "42.5", want: 42.5},
		{name: "number integer", kind: KindNumber, raw: "7", want: float64(7)},
		{name: "number padded", kind: KindNumber, raw: " 3 ", want: float64(3)},
		{name: "number invalid", kind: KindNumber, raw: "abc", wantErr: true},
		{name: "boolean true", kind: KindBoolean, raw: "true", want: true},
		{name: "boolean mixed case", kind: KindBoolean, raw: "TRUE", want: true},
		{name: "boolean anything else", kind: KindBoolean, raw: "yes", want: false},
		{name: "boolean empty", kind: KindBoolean, raw: "", want: false},
		{name: "text passthrough", kind: KindText, raw: "  keep me  ", want: "  keep me  "},
		{name: "select passthrough", kind: KindSelect, raw: "full_analysis", want: "full_analysis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceInput(tt.kind, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_ResolvesExactlyOnce(t *testing.T) {
	g := NewGate[ApprovalDecision]()
	assert.False(t, g.Resolved())

	assert.True(t, g.Resolve(ApprovalDecision{Approved: true}))
	assert.False(t, g.Resolve(ApprovalDecision{Approved: false, Reason: "late"}),
		"second resolution must be ignored")
	assert.True(t, g.Resolved())

	d, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Approved, "the first resolution wins")
	assert.Empty(t, d.Reason)
}

func TestGate_WaitBlocksUntilResolved(t *testing.T) {
	g := NewGate[InputResult]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Resolve(InputResult{Value: 42.0})
	}()

	res, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Value)
}

func TestGate_WaitHonorsContext(t *testing.T) {
	g := NewGate[InputResult]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInputResult_CancelIsNotEmpty(t *testing.T) {
	cancelled := InputResult{Cancelled: true}
	empty := InputResult{Value: ""}

	assert.True(t, cancelled.Cancelled)
	assert.Nil(t, cancelled.Value)
	assert.False(t, empty.Cancelled)
}
