// Package i18n holds the message catalog for user-facing strings.
package i18n

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	ScheduleUpdated     = "Schedule %q updated successfully"
	SomethingWentWrong  = "Something went wrong"
	AppDisabledSubject  = "%s has been disabled"
	AppDisabledCredBody = "Hi %s, an administrator disabled the %s app. Your connected account will stop working until it is enabled again."
	AppDisabledETBody   = "Hi %s, an administrator disabled the %s app. It has been switched off on event type #%d."
	AppDisabledBody     = "Hi %s, an administrator disabled the %s app."
)

var supported = []language.Tag{
	language.English,
	language.German,
	language.Spanish,
	language.French,
}

var (
	matcher = language.NewMatcher(supported)
	cat     = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		_ = b.SetString(tag, key, msg)
	}

	for _, key := range []string{ScheduleUpdated, SomethingWentWrong, AppDisabledSubject, AppDisabledCredBody, AppDisabledETBody, AppDisabledBody} {
		set(language.English, key, key)
	}

	set(language.German, ScheduleUpdated, "Zeitplan %q wurde gespeichert")
	set(language.German, SomethingWentWrong, "Etwas ist schiefgelaufen")
	set(language.German, AppDisabledSubject, "%s wurde deaktiviert")
	set(language.German, AppDisabledCredBody, "Hallo %s, ein Administrator hat die App %s deaktiviert. Dein verbundenes Konto funktioniert erst wieder, wenn sie aktiviert wird.")
	set(language.German, AppDisabledETBody, "Hallo %s, ein Administrator hat die App %s deaktiviert. Sie wurde für den Termintyp #%d ausgeschaltet.")
	set(language.German, AppDisabledBody, "Hallo %s, ein Administrator hat die App %s deaktiviert.")

	set(language.Spanish, ScheduleUpdated, "Horario %q actualizado correctamente")
	set(language.Spanish, SomethingWentWrong, "Algo salió mal")
	set(language.Spanish, AppDisabledSubject, "%s se ha desactivado")
	set(language.Spanish, AppDisabledCredBody, "Hola %s, un administrador desactivó la aplicación %s. Tu cuenta conectada dejará de funcionar hasta que se vuelva a activar.")
	set(language.Spanish, AppDisabledETBody, "Hola %s, un administrador desactivó la aplicación %s. Se ha desactivado en el tipo de evento #%d.")
	set(language.Spanish, AppDisabledBody, "Hola %s, un administrador desactivó la aplicación %s.")

	set(language.French, ScheduleUpdated, "Planning %q mis à jour")
	set(language.French, SomethingWentWrong, "Une erreur est survenue")
	set(language.French, AppDisabledSubject, "%s a été désactivée")
	set(language.French, AppDisabledCredBody, "Bonjour %s, un administrateur a désactivé l'application %s. Votre compte connecté ne fonctionnera plus tant qu'elle ne sera pas réactivée.")
	set(language.French, AppDisabledETBody, "Bonjour %s, un administrateur a désactivé l'application %s. Elle a été désactivée sur le type d'événement #%d.")
	set(language.French, AppDisabledBody, "Bonjour %s, un administrateur a désactivé l'application %s.")

	return b
}

// Translator renders catalog messages for one language.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New picks the closest supported language for locale, falling back to
// English.
func New(locale string) Translator {
	tag := language.English
	if parsed, err := language.Parse(locale); err == nil {
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return Translator{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}
}

// FromRequest picks the language from the Accept-Language header.
func FromRequest(r *http.Request) Translator {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return New("en")
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return New("en")
	}
	return New(supported[idx].String())
}

// T formats the message stored under key.
func (t Translator) T(key string, args ...any) string {
	if t.printer == nil {
		return New("en").T(key, args...)
	}
	return t.printer.Sprintf(key, args...)
}

// Language returns the BCP 47 tag in use.
func (t Translator) Language() string {
	return t.tag.String()
}
