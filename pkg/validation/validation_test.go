package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPermissionName(t *testing.T) {
	valid := []string{"menus.approve", "production.manage", "delivery.override", "audit_log.read"}
	invalid := []string{"", "menus", "menus.*", "Menus.approve", "menus.approve.extra", ".read", "menus.", "1menus.read"}

	for _, s := range valid {
		assert.True(t, IsPermissionName(s), s)
	}
	for _, s := range invalid {
		assert.False(t, IsPermissionName(s), s)
	}
}

func TestRegisterOn(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterOn(v))

	type req struct {
		Name string `validate:"required,permission_name"`
	}
	assert.NoError(t, v.Struct(req{Name: "quality.manage"}))
	assert.Error(t, v.Struct(req{Name: "quality"}))
}
