package xqueue

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names instead of Go struct field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// envelope is a decoded and type-checked submission.
type envelope struct {
	StudentID      string            `json:"anonymous_student_id" validate:"notblank"`
	Response       string            `json:"student_response"`
	CallbackURL    string            `json:"lms_callback_url" validate:"omitempty,url"`
	QueueName      string            `json:"queue_name" validate:"omitempty,excludesall=/"`
	GraderFileName string            `json:"grader_file_name"`
	GraderPayload  json.RawMessage   `json:"grader_payload"`
	Files          map[string]string `json:"files" validate:"omitempty,dive,keys,notblank,endkeys"`
}

// decodeObject accepts a structured map or its JSON serialization.
func decodeObject(name string, v any) (map[string]any, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case json.RawMessage:
		return decodeObject(name, []byte(t))
	case string:
		return decodeObject(name, []byte(t))
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(t, &m); err != nil {
			return nil, &JSONParsingError{Name: name, Detail: err.Error()}
		}
		if m == nil {
			return nil, &TypeErrorSubmission{Detail: name + " must be a JSON object"}
		}
		return m, nil
	case nil:
		return nil, &MissingKeyError{Key: name}
	}
	return nil, &TypeErrorSubmission{Detail: fmt.Sprintf("%s must be an object, got %T", name, v)}
}

func stringField(m map[string]any, key, path string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	if v == nil {
		return "", true, &ValidationError{Field: path, Reason: path + " must not be null"}
	}
	s, isString := v.(string)
	if !isString {
		return "", true, &TypeErrorSubmission{Detail: fmt.Sprintf("%s must be a string, got %s", path, jsonType(v))}
	}
	return s, true, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "null"
}

// parseEnvelope runs the decoding and key checks, then struct validation.
func parseEnvelope(header, body any, files map[string]string, allowEmpty bool) (*envelope, error) {
	h, err := decodeObject("header", header)
	if err != nil {
		return nil, err
	}
	b, err := decodeObject("body", body)
	if err != nil {
		return nil, err
	}

	env := &envelope{Files: files}

	rawInfo, ok := b["student_info"]
	if !ok {
		return nil, &MissingKeyError{Key: "student_info"}
	}
	info, err := decodeObject("student_info", rawInfo)
	if err != nil {
		return nil, err
	}
	sid, ok, err := stringField(info, "anonymous_student_id", "anonymous_student_id")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingKeyError{Key: "student_info.anonymous_student_id"}
	}
	env.StudentID = sid

	if _, ok := b["student_response"]; !ok {
		return nil, &ValidationError{Field: "student_response", Reason: "The field 'student_response' does not exist."}
	}
	if env.Response, _, err = stringField(b, "student_response", "student_response"); err != nil {
		return nil, err
	}
	if !allowEmpty && strings.TrimSpace(env.Response) == "" {
		return nil, &ValidationError{Field: "student_response", Reason: "student_response must not be empty"}
	}

	payload, ok := b["grader_payload"]
	if !ok {
		return nil, &MissingKeyError{Key: "grader_payload"}
	}
	if err := env.setPayload(payload); err != nil {
		return nil, err
	}

	if env.CallbackURL, _, err = stringField(h, "lms_callback_url", "lms_callback_url"); err != nil {
		return nil, err
	}
	if env.CallbackURL == "" {
		if env.CallbackURL, _, err = stringField(h, "callback_url", "callback_url"); err != nil {
			return nil, err
		}
	}
	if env.QueueName, _, err = stringField(h, "queue_name", "queue_name"); err != nil {
		return nil, err
	}

	if err := validate.Struct(env); err != nil {
		return nil, validationError(err)
	}
	return env, nil
}

// setPayload accepts the grader payload as a JSON string or object and
// extracts grader_file_name from it when present.
func (env *envelope) setPayload(v any) error {
	var obj map[string]any
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		env.GraderPayload, _ = json.Marshal(t)
		// A payload string that is not a JSON object is passed through untouched.
		if json.Unmarshal([]byte(t), &obj) != nil || obj == nil {
			return nil
		}
	case map[string]any:
		obj = t
		env.GraderPayload, _ = json.Marshal(t)
	default:
		return &TypeErrorSubmission{Detail: fmt.Sprintf("grader_payload must be a string or object, got %s", jsonType(v))}
	}
	name, _, err := stringField(obj, "grader_file_name", "grader_payload.grader_file_name")
	if err != nil {
		return err
	}
	env.GraderFileName = name
	return nil
}

func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	var reason string
	switch fe.Tag() {
	case "notblank", "required":
		reason = field + " must not be empty"
	case "url":
		reason = field + " must be a valid URL"
	case "excludesall":
		reason = fmt.Sprintf("%s must not contain any of %q", field, fe.Param())
	default:
		reason = fmt.Sprintf("%s failed the %s check", field, fe.Tag())
	}
	return &ValidationError{Field: field, Reason: reason}
}
