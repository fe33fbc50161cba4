package checkout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() Form {
	return Form{
		Name:    "Asha Verma",
		Phone:   "9876543210",
		Email:   "asha@example.com",
		Address: "12 MG Road, Near Clock Tower",
		City:    "Indore",
		State:   DefaultState,
		Pincode: "456331",
	}
}

func TestValidate_AcceptsAndTrims(t *testing.T) {
	f := validForm()
	f.Name = "  Asha Verma  "
	f.Pincode = " 456331 "

	got, err := Validate(f)

	require.NoError(t, err)
	assert.Equal(t, "Asha Verma", got.Name)
	assert.Equal(t, "456331", got.Pincode)
}

func TestValidate_OptionalFieldsMayBeBlank(t *testing.T) {
	f := validForm()
	f.Email = "   "
	f.Notes = ""

	got, err := Validate(f)

	require.NoError(t, err)
	assert.Empty(t, got.Email)
}

func TestValidate_FieldMessages(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Form)
		field string
		msg   string
	}{
		{"short phone", func(f *Form) { f.Phone = "123" }, "phone", "Valid phone number required"},
		{"long phone", func(f *Form) { f.Phone = strings.Repeat("9", 16) }, "phone", "Valid phone number required"},
		{"blank name", func(f *Form) { f.Name = "   " }, "name", "Name is required"},
		{"long name", func(f *Form) { f.Name = strings.Repeat("a", 101) }, "name", "Name must be at most 100 characters"},
		{"bad email", func(f *Form) { f.Email = "asha@" }, "email", "Valid email required"},
		{"short address", func(f *Form) { f.Address = "Indore" }, "address", "Complete address required"},
		{"long address", func(f *Form) { f.Address = strings.Repeat("x", 501) }, "address", "Address must be at most 500 characters"},
		{"blank city", func(f *Form) { f.City = "" }, "city", "City is required"},
		{"blank state", func(f *Form) { f.State = "" }, "state", "State is required"},
		{"short pincode", func(f *Form) { f.Pincode = "4563" }, "pincode", "Valid pincode required"},
		{"long pincode", func(f *Form) { f.Pincode = "45633145633" }, "pincode", "Valid pincode required"},
		{"long notes", func(f *Form) { f.Notes = strings.Repeat("n", 501) }, "notes", "Notes must be at most 500 characters"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := validForm()
			c.edit(&f)

			_, err := Validate(f)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, map[string]string{c.field: c.msg}, verr.Fields)
		})
	}
}

func TestValidate_LongEmailAccepted(t *testing.T) {
	f := validForm()
	f.Email = "asha@" + strings.Repeat("weaver.", 40) + "in"

	got, err := Validate(f)

	require.NoError(t, err)
	assert.Len(t, got.Email, 287)
}

func TestValidate_LengthsCountCharacters(t *testing.T) {
	f := validForm()
	// 100 runes, more than 100 bytes
	f.Name = strings.Repeat("स", 100)

	_, err := Validate(f)

	assert.NoError(t, err)
}

func TestValidate_ReportsEveryField(t *testing.T) {
	_, err := Validate(NewForm())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		"name":    "Name is required",
		"phone":   "Valid phone number required",
		"address": "Complete address required",
		"city":    "City is required",
		"pincode": "Valid pincode required",
	}, verr.Fields)
	assert.Equal(t, "invalid checkout form: address, city, name, phone, pincode", verr.Error())
}

func TestNewForm_DefaultState(t *testing.T) {
	assert.Equal(t, "Madhya Pradesh", NewForm().State)
}
