package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", Validation("fls_supervisor", "required"), KindValidation},
		{"transition", InvalidTransition("approve", "draft"), KindInvalidTransition},
		{"authorization", Unauthorized(7, "approve", "not the approver"), KindAuthorization},
		{"not found", NotFound("voucher", 3), KindNotFound},
		{"wrapped", fmt.Errorf("submit: %w", NotFound("person", 1)), KindNotFound},
		{"plain", errors.New("disk full"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestDetails(t *testing.T) {
	d := Details(InvalidTransition("reopen", "approved"))
	assert.Equal(t, "reopen", d["action"])
	assert.Equal(t, "approved", d["status"])

	d = Details(Validation("assigned_supervisor", "missing"))
	assert.Equal(t, "assigned_supervisor", d["field"])

	assert.Nil(t, Details(errors.New("x")))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "cannot approve while status is draft", InvalidTransition("approve", "draft").Error())
	assert.Equal(t, "voucher 9 not found", NotFound("voucher", 9).Error())
	assert.Contains(t, Validation("reason", "must not be empty").Error(), "reason")
}
