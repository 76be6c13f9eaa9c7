package apps

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
)

type GoogleCalendarKeys struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	RedirectURIs []string `json:"redirect_uris" validate:"required,min=1,dive,url"`
}

type Office365CalendarKeys struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

type ZoomVideoKeys struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

type DailyVideoKeys struct {
	APIKey    string `json:"api_key" validate:"required"`
	ScalePlan string `json:"scale_plan" validate:"omitempty,oneof=true false"`
}

type StripePaymentKeys struct {
	ClientID      string `json:"client_id" validate:"required,startswith=ca_"`
	PrivateKey    string `json:"private_key" validate:"required,startswith=sk_"`
	PublicKey     string `json:"public_key" validate:"required,startswith=pk_"`
	WebhookSecret string `json:"webhook_secret" validate:"required,startswith=whsec_"`
}

type GiphyKeys struct {
	APIKey string `json:"api_key" validate:"required"`
}

type HubspotKeys struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

type schema struct {
	newValue func() any
	keyNames []string
}

func schemaFor[T any]() schema {
	return schema{
		newValue: func() any { return new(T) },
		keyNames: jsonKeyNames(reflect.TypeOf((*T)(nil)).Elem()),
	}
}

// schemas is keyed by SchemaKey(app type).
var schemas = map[string]schema{
	"googlecalendar":    schemaFor[GoogleCalendarKeys](),
	"office365calendar": schemaFor[Office365CalendarKeys](),
	"zoomvideo":         schemaFor[ZoomVideoKeys](),
	"dailyvideo":        schemaFor[DailyVideoKeys](),
	"stripepayment":     schemaFor[StripePaymentKeys](),
	"giphyother":        schemaFor[GiphyKeys](),
	"hubspotother":      schemaFor[HubspotKeys](),
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f)
	})
	return v
}

// SchemaKey derives the schema lookup key from an app type:
// lowercased with '_' and '-' removed.
func SchemaKey(appType string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(appType)))
}

// KeyNames lists the configuration keys an app type expects.
func KeyNames(appType string) []string {
	s, ok := schemas[SchemaKey(appType)]
	if !ok {
		return nil
	}
	return append([]string(nil), s.keyNames...)
}

// ParseKeys strictly decodes and validates raw against the schema for
// appType and returns the re-encoded parsed value.
func ParseKeys(appType string, raw json.RawMessage) (json.RawMessage, error) {
	s, ok := schemas[SchemaKey(appType)]
	if !ok {
		return nil, httperrors.Validation("unknown app type").WithField("type", "no key schema for "+appType)
	}

	value := s.newValue()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return nil, httperrors.Validation("keys do not match the app schema").WithField("keys", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, httperrors.Validation("keys do not match the app schema").WithField("keys", "trailing data after object")
	}

	if err := validate.Struct(value); err != nil {
		verr := httperrors.Validation("keys do not match the app schema")
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.WithField(fieldPath(fe), describe(fe))
			}
			return nil, verr
		}
		return nil, verr.WithField("keys", err.Error())
	}

	out, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fieldPath drops the struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "url":
		return "must be a URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "startswith":
		return "must start with " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func jsonKeyNames(t reflect.Type) []string {
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
