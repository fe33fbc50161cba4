package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const DefaultState = "Madhya Pradesh"

// Form is the shipping and contact details entered at checkout. Email and
// Notes are optional.
type Form struct {
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"min=10,max=15"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"min=10,max=500"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	Pincode string `json:"pincode" validate:"min=6,max=10"`
	Notes   string `json:"notes" validate:"max=500"`
}

// NewForm returns a blank form with the store's home state preselected.
func NewForm() Form { return Form{State: DefaultState} }

func (f Form) trimmed() Form {
	return Form{
		Name:    strings.TrimSpace(f.Name),
		Phone:   strings.TrimSpace(f.Phone),
		Email:   strings.TrimSpace(f.Email),
		Address: strings.TrimSpace(f.Address),
		City:    strings.TrimSpace(f.City),
		State:   strings.TrimSpace(f.State),
		Pincode: strings.TrimSpace(f.Pincode),
		Notes:   strings.TrimSpace(f.Notes),
	}
}

// ValidationError maps a field's JSON name to the message of the first rule it broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid checkout form: %s", strings.Join(names, ", "))
}

var messages = map[string]map[string]string{
	"name":    {"required": "Name is required", "max": "Name must be at most 100 characters"},
	"phone":   {"min": "Valid phone number required", "max": "Valid phone number required"},
	"email":   {"email": "Valid email required"},
	"address": {"min": "Complete address required", "max": "Address must be at most 500 characters"},
	"city":    {"required": "City is required", "max": "City must be at most 100 characters"},
	"state":   {"required": "State is required", "max": "State must be at most 100 characters"},
	"pincode": {"min": "Valid pincode required", "max": "Valid pincode required"},
	"notes":   {"max": "Notes must be at most 500 characters"},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate trims every field and checks it. It returns the trimmed form, or
// a *ValidationError listing each failing field once.
func Validate(f Form) (Form, error) {
	f = f.trimmed()
	err := validate.Struct(f)
	if err == nil {
		return f, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return f, err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		if _, seen := out.Fields[fe.Field()]; seen {
			continue
		}
		out.Fields[fe.Field()] = message(fe)
	}
	return f, out
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Field()][fe.Tag()]; ok {
		return m
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
