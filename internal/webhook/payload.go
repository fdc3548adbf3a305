package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeForm = "application/x-www-form-urlencoded"
)

// Payload is an inbound message callback
type Payload struct {
	MessageSid    string `json:"MessageSid" validate:"required"`
	AccountSid    string `json:"AccountSid" validate:"required"`
	From          string `json:"From" validate:"required"`
	To            string `json:"To" validate:"required"`
	Body          string `json:"Body" validate:"required"`
	MessageStatus string `json:"MessageStatus,omitempty"`
}

var payloadFields = []string{"MessageSid", "AccountSid", "From", "To", "Body", "MessageStatus"}

// parseBody decodes a request body into its parameters. JSON values keep their
// decoded type so the schema check can reject non-string fields.
func parseBody(mediaType string, raw []byte) (map[string]any, error) {
	params := make(map[string]any)
	switch mediaType {
	case mediaTypeJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return nil, fmt.Errorf("failed to decode json body: %w", err)
		}
		if params == nil {
			return nil, errors.New("json body must be an object")
		}
	case mediaTypeForm:
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode form body: %w", err)
		}
		for k, v := range values {
			params[k] = v[0]
		}
	default:
		return nil, fmt.Errorf("unsupported media type %s", mediaType)
	}
	return params, nil
}

// stringParams flattens decoded parameters to the strings the signature covers
func stringParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// toPayload checks field types and required fields and returns the issues found
func toPayload(validate *validator.Validate, params map[string]any, accountID string) (Payload, []string) {
	var (
		p      Payload
		issues []string
	)
	targets := map[string]*string{
		"MessageSid":    &p.MessageSid,
		"AccountSid":    &p.AccountSid,
		"From":          &p.From,
		"To":            &p.To,
		"Body":          &p.Body,
		"MessageStatus": &p.MessageStatus,
	}
	typeErrors := make(map[string]bool)
	for _, name := range payloadFields {
		v, ok := params[name]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			issues = append(issues, fmt.Sprintf("%s must be a string", name))
			typeErrors[name] = true
			continue
		}
		*targets[name] = s
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return p, append(issues, err.Error())
		}
		for _, fe := range verrs {
			if typeErrors[fe.Field()] {
				continue
			}
			if fe.Tag() == "required" {
				issues = append(issues, fmt.Sprintf("%s is required", fe.Field()))
			} else {
				issues = append(issues, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
			}
		}
	}

	if accountID != "" && p.AccountSid != "" && p.AccountSid != accountID {
		issues = append(issues, "AccountSid does not match the configured account")
	}
	return p, issues
}
