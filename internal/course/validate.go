package course

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/crypto/blake2b"
)

var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = en_translations.RegisterDefaultTranslations(validate, trans)
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError lists every problem found in a course document.
type ValidationError struct {
	CourseID string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid course %q: %s", e.CourseID, strings.Join(e.Problems, "; "))
}

// Validate checks required fields, enum values and identity uniqueness.
// Courses that fail validation must not reach the navigator.
func Validate(c Course) error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating course: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Translate(trans)))
		}
	}

	modules := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if modules[m.ID] {
			problems = append(problems, fmt.Sprintf("duplicate module id %q", m.ID))
		}
		modules[m.ID] = true
		if strings.Contains(m.ID, "/") {
			problems = append(problems, fmt.Sprintf("module id %q must not contain '/'", m.ID))
		}

		lessons := make(map[string]bool, len(m.Lessons))
		for _, l := range m.Lessons {
			if lessons[l.ID] {
				problems = append(problems, fmt.Sprintf("duplicate lesson id %q in module %q", l.ID, m.ID))
			}
			lessons[l.ID] = true
			if strings.Contains(l.ID, "/") {
				problems = append(problems, fmt.Sprintf("lesson id %q in module %q must not contain '/'", l.ID, m.ID))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{CourseID: c.ID, Problems: problems}
	}
	return nil
}

// Fingerprint returns a stable content hash of the course, ignoring the
// per-viewer completion projection. The API sends it in a response header.
func Fingerprint(c Course) string {
	data, err := json.Marshal(c.Project(nil))
	if err != nil {
		// Course holds only strings, ints and slices of them.
		panic(fmt.Sprintf("course: marshal for fingerprint: %v", err))
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
