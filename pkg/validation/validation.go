package validation

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var permissionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// IsPermissionName reports whether s has the `module.action` shape.
func IsPermissionName(s string) bool {
	return permissionNamePattern.MatchString(s)
}

// Register adds the custom tags to gin's binding validator. Call once at startup.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return RegisterOn(v)
}

func RegisterOn(v *validator.Validate) error {
	return v.RegisterValidation("permission_name", func(fl validator.FieldLevel) bool {
		return IsPermissionName(fl.Field().String())
	})
}
