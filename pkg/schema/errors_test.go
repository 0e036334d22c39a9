package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagenErrorMessage(t *testing.T) {
	err := NewErrorf(ErrCodeSyntax, "line %d: unexpected token", 3)
	assert.Equal(t, "[SYNTAX_ERROR] line 3: unexpected token", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestDiagenErrorCause(t *testing.T) {
	err := NewError(ErrCodeCancelled, "diagram cancelled").WithCause(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)

	wrapped := fmt.Errorf("render: %w", err)
	var de *DiagenError
	require.ErrorAs(t, wrapped, &de)
	assert.Equal(t, ErrCodeCancelled, de.Code)
}

func TestDiagenErrorJSON(t *testing.T) {
	err := NewError(ErrCodeEnvelope, "no completion text").
		WithCause(errors.New("hidden")).
		WithDetails(map[string]any{"keys": []string{"id"}})

	data, mErr := json.Marshal(err)
	require.NoError(t, mErr)
	assert.JSONEq(t, `{"code":"ENVELOPE_ERROR","message":"no completion text","details":{"keys":["id"]}}`, string(data))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), ""},
		{"direct", NewError(ErrCodeRender, "dot failed"), ErrCodeRender},
		{"wrapped", fmt.Errorf("batch: %w", NewError(ErrCodeUnsupported, "pie")), ErrCodeUnsupported},
		{"outermost wins", NewError(ErrCodeValidation, "outer").WithCause(NewError(ErrCodeSyntax, "inner")), ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
