package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validator exposes the shared validator so other packages register rules in one place.
func Validator() *validator.Validate { return validate }

// NormalizeStudentID trims the identifier and rejects empty ones.
func NormalizeStudentID(id StudentID) (StudentID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", fmt.Errorf("%w: empty student id", ErrValidation)
	}
	return StudentID(s), nil
}

// NormalizeClass trims the class name and rejects empty ones.
func NormalizeClass(c ClassName) (ClassName, error) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return "", fmt.Errorf("%w: empty class name", ErrValidation)
	}
	return ClassName(s), nil
}

// ValidateSubject checks a subject name is usable as a key in every backend.
func ValidateSubject(s Subject) error {
	if strings.TrimSpace(string(s)) != string(s) {
		return fmt.Errorf("%w: subject %q has surrounding whitespace", ErrValidation, s)
	}
	if err := validate.Var(string(s), "required,max=64,excludesall=.$"); err != nil {
		return fmt.Errorf("%w: subject %q: %s", ErrValidation, s, fieldMessage(err))
	}
	return nil
}

// ValidateTerm checks year and semester bounds.
func ValidateTerm(t Term) error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: term %s: %s", ErrValidation, t, fieldMessage(err))
	}
	return nil
}

// ValidateStudent checks an enrollment record.
func ValidateStudent(s Student) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: student: %s", ErrValidation, fieldMessage(err))
	}
	return nil
}

// ValidateUser checks a user account before it is stored.
func ValidateUser(u User) error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: user: %s", ErrValidation, fieldMessage(err))
	}
	if u.Role == RoleStudent {
		if _, err := NormalizeStudentID(u.StudentID); err != nil {
			return err
		}
		if _, err := NormalizeClass(u.Class); err != nil {
			return err
		}
	}
	return nil
}

// ScorePolicy bounds the scores accepted by writes.
type ScorePolicy struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max" validate:"gtfield=Min"`
}

// DefaultScorePolicy accepts 0..100.
func DefaultScorePolicy() ScorePolicy { return ScorePolicy{Min: 0, Max: 100} }

// Check rejects scores outside [Min, Max].
func (p ScorePolicy) Check(score int) error {
	if score < p.Min || score > p.Max {
		return fmt.Errorf("%w: score %d outside [%d, %d]", ErrValidation, score, p.Min, p.Max)
	}
	return nil
}

// Validate checks the policy itself.
func (p ScorePolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: score policy: max must exceed min", ErrValidation)
	}
	return nil
}

func fieldMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if field == "" {
			field = "value"
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}
