package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signUpForm struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

func TestPlaygroundV10_Struct(t *testing.T) {
	v := NewValidator("en")

	assert.Nil(t, v.Struct(&signUpForm{Username: "alice", Email: "alice@example.com"}))

	errs := v.Struct(&signUpForm{Email: "nope"})
	require.Len(t, errs, 2)
	assert.Equal(t, "username", errs[0].Domain)
	assert.Equal(t, "username is a required field", errs[0].Reason)
	assert.Equal(t, "email", errs[1].Domain)
	assert.Equal(t, "email must be a valid email address", errs[1].Reason)
	assert.Equal(t, []string{"username is a required field", "email must be a valid email address"}, Reasons(errs))
}

func TestPlaygroundV10_Chinese(t *testing.T) {
	v := NewValidator("zh")

	errs := v.Struct(&signUpForm{Email: "alice@example.com"})
	require.Len(t, errs, 1)
	assert.Equal(t, "username", errs[0].Domain)
	assert.Equal(t, "username为必填字段", errs[0].Reason)
}
