package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type purchaseBody struct {
	CourseID string `json:"course_id" validate:"required,opaque_id"`
}

type priced struct {
	Price decimal.Decimal `validate:"gt=0"`
}

func TestValidateStructured_OpaqueID(t *testing.T) {
	v := New()

	assert.Nil(t, v.ValidateStructured(&purchaseBody{CourseID: "665f1c2ab9e4d3a1c8f0e123"}))
	assert.Nil(t, v.ValidateStructured(&purchaseBody{CourseID: "user_2abcDEF"}))

	errs := v.ValidateStructured(&purchaseBody{CourseID: ""})
	assert.Equal(t, "This field is required", errs["CourseID"])

	errs = v.ValidateStructured(&purchaseBody{CourseID: "c1; DROP TABLE courses"})
	assert.Equal(t, "Invalid identifier", errs["CourseID"])
}

func TestValidate_Decimal(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(&priced{Price: decimal.NewFromInt(100)}))
	assert.Error(t, v.Validate(&priced{Price: decimal.Zero}))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;Go&lt;/b&gt;", Sanitize("  <b>Go</b> "))
}
