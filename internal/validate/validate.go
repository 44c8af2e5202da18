package validate

import (
	"fmt"
	"mime/multipart"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"rocket-console/internal/schema"
	"rocket-console/internal/transform"
)

// ErrorMap holds one message per field key.
type ErrorMap map[string]string

// Summary is the text of the single aggregate toast shown when a submission
// is blocked.
func (e ErrorMap) Summary() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		for _, msg := range e {
			return msg
		}
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("Please fix %d fields: %s", len(e), e[keys[0]])
}

// IsEmpty reports whether v counts as missing for a field of the given kind.
// Zero and false are values, not absences. An empty list is missing for every
// kind; only list-valued widgets produce one in practice.
func IsEmpty(v any, _ schema.WidgetKind) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case *schema.Option:
		return val == nil
	case []*multipart.FileHeader:
		return len(val) == 0
	case *multipart.FileHeader:
		return val == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

// Validate runs required checks and field rules over values and returns the
// errors keyed by field key. An empty map means the values may be submitted.
func Validate(fields []schema.Field, values transform.ValueMap) ErrorMap {
	errs := ErrorMap{}
	for _, f := range fields {
		v := values[f.Key()]
		empty := IsEmpty(v, f.Widget)
		if f.Required && empty {
			errs[f.Key()] = RequiredMessage(f)
			continue
		}
		if empty {
			continue
		}
		for _, r := range f.Rules {
			if msg, failed := evaluateRule(f, r, v); failed {
				errs[f.Key()] = msg
				break
			}
		}
	}
	return errs
}

// ValidatePage runs Validate and, when every field passed, the page's
// cross-field checks.
func ValidatePage(fields []schema.Field, checks []schema.Check, values transform.ValueMap) ErrorMap {
	errs := Validate(fields, values)
	if len(errs) > 0 || len(checks) == 0 {
		return errs
	}
	return RunChecks(checks, values)
}

// RequiredMessage is the message shown for an empty required field.
func RequiredMessage(f schema.Field) string {
	label := f.Label
	if label == "" {
		label = f.Name
	}
	return label + " is required"
}

func evaluateRule(f schema.Field, r schema.FieldRule, v any) (string, bool) {
	msg := r.Message
	if msg == "" {
		msg = defaultRuleMessage(f, r)
	}

	switch r.Operator {
	case "min", "max":
		num, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Sprintf("%s must be a number", labelOf(f)), true
		}
		threshold, err := cast.ToFloat64E(r.Value)
		if err != nil {
			return "", false
		}
		if r.Operator == "min" && num < threshold {
			return msg, true
		}
		if r.Operator == "max" && num > threshold {
			return msg, true
		}

	case "min_length", "max_length":
		s, ok := v.(string)
		if !ok {
			return "", false
		}
		threshold, err := cast.ToIntE(r.Value)
		if err != nil {
			return "", false
		}
		n := utf8.RuneCountInString(s)
		if r.Operator == "min_length" && n < threshold {
			return msg, true
		}
		if r.Operator == "max_length" && n > threshold {
			return msg, true
		}

	case "pattern":
		s, ok := v.(string)
		if !ok {
			return "", false
		}
		pattern, ok := r.Value.(string)
		if !ok {
			return "", false
		}
		matched, err := regexp.MatchString(pattern, s)
		if err != nil || !matched {
			return msg, true
		}
	}
	return "", false
}

func defaultRuleMessage(f schema.Field, r schema.FieldRule) string {
	label := labelOf(f)
	switch r.Operator {
	case "min":
		return fmt.Sprintf("%s must be at least %v", label, r.Value)
	case "max":
		return fmt.Sprintf("%s must be at most %v", label, r.Value)
	case "min_length":
		return fmt.Sprintf("%s must be at least %v characters", label, r.Value)
	case "max_length":
		return fmt.Sprintf("%s must be at most %v characters", label, r.Value)
	default:
		return fmt.Sprintf("%s is not valid", label)
	}
}

func labelOf(f schema.Field) string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	return f.Name
}
