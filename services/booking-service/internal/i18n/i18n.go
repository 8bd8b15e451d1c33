// Package i18n turns message keys and validator errors into short,
// caller-facing strings in English or Spanish.
package i18n

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	es_translations "github.com/go-playground/validator/v10/translations/es"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
)

var messages = map[string]map[string]string{
	"en": {
		apperr.KeyInternal:            "Something went wrong. Please try again later.",
		apperr.KeyUnavailable:         "The service is temporarily unavailable. Please try again.",
		apperr.KeyInvalidRequest:      "The booking request is invalid.",
		apperr.KeyInvalidPhone:        "The phone number is not valid.",
		apperr.KeyBotCheckFailed:      "We could not verify this request. Please try again.",
		apperr.KeyTooManyBookings:     "Too many bookings with this email. Please try again later.",
		apperr.KeyServiceNotFound:     "The selected service is not available.",
		apperr.KeyEmployeeNotFound:    "The selected staff member is not available.",
		apperr.KeyEmployeeNotBookable: "The selected staff member does not take bookings.",
		apperr.KeySlotTaken:           "This time is no longer available.",
		apperr.KeyClaimInvalid:        "This claim link is invalid or has expired.",
		apperr.KeyClaimNotFound:       "Appointment not found.",
		apperr.KeySyncForbidden:       "You do not have access to this business.",
		apperr.KeyInvalidDate:         "The date is not valid.",
	},
	"es": {
		apperr.KeyInternal:            "Algo salió mal. Inténtalo más tarde.",
		apperr.KeyUnavailable:         "El servicio no está disponible temporalmente. Inténtalo de nuevo.",
		apperr.KeyInvalidRequest:      "La solicitud de reserva no es válida.",
		apperr.KeyInvalidPhone:        "El número de teléfono no es válido.",
		apperr.KeyBotCheckFailed:      "No pudimos verificar esta solicitud. Inténtalo de nuevo.",
		apperr.KeyTooManyBookings:     "Demasiadas reservas con este correo. Inténtalo más tarde.",
		apperr.KeyServiceNotFound:     "El servicio seleccionado no está disponible.",
		apperr.KeyEmployeeNotFound:    "El profesional seleccionado no está disponible.",
		apperr.KeyEmployeeNotBookable: "El profesional seleccionado no acepta reservas.",
		apperr.KeySlotTaken:           "Este horario ya no está disponible.",
		apperr.KeyClaimInvalid:        "Este enlace no es válido o ha caducado.",
		apperr.KeyClaimNotFound:       "Cita no encontrada.",
		apperr.KeySyncForbidden:       "No tienes acceso a este negocio.",
		apperr.KeyInvalidDate:         "La fecha no es válida.",
	},
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Catalog struct {
	uni *ut.UniversalTranslator
}

func New(validate *validator.Validate) (*Catalog, error) {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, es.New())

	enTrans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}
	esTrans, _ := uni.GetTranslator("es")
	if err := es_translations.RegisterDefaultTranslations(validate, esTrans); err != nil {
		return nil, err
	}

	for lang, msgs := range messages {
		tr, _ := uni.GetTranslator(lang)
		for key, text := range msgs {
			if err := tr.Add(key, text, true); err != nil {
				return nil, err
			}
		}
	}
	return &Catalog{uni: uni}, nil
}

// Translator picks the best supported language from an Accept-Language
// header, defaulting to English.
func (c *Catalog) Translator(acceptLanguage string) ut.Translator {
	var langs []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		base, _, _ := strings.Cut(tag, "-")
		if base != "" {
			langs = append(langs, strings.ToLower(base))
		}
	}
	tr, _ := c.uni.FindTranslator(langs...)
	return tr
}

// Message renders err for tr. Validation failures list each field problem;
// everything else uses the error's message key.
func (c *Catalog) Message(tr ut.Translator, err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := verrs.Translate(tr)
		out := make([]string, 0, len(fields))
		for _, msg := range fields {
			out = append(out, msg)
		}
		sort.Strings(out)
		return strings.Join(out, "; ")
	}
	msg, terr := tr.T(apperr.KeyOf(err))
	if terr != nil || msg == "" {
		msg, _ = tr.T(apperr.KeyInternal)
	}
	return msg
}
