package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	sessionLanguageKey = "language"
	contextLocalizer   = "localizer"
	contextLanguage    = "language"
)

// I18nConfig definiert die Konfiguration für die i18n-Middleware
type I18nConfig struct {
	DefaultLanguage string
}

// Translator hält das Bundle und einen Localizer pro Sprache
type Translator struct {
	bundle     *i18n.Bundle
	fallback   language.Tag
	localizers map[string]*i18n.Localizer
	tags       []language.Tag
	matcher    language.Matcher
}

// NewTranslator lädt die eingebetteten Übersetzungsdateien
func NewTranslator(config I18nConfig) (*Translator, error) {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	fallback, err := language.Parse(config.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", config.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(fallback)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, err
	}

	t := &Translator{
		bundle:     bundle,
		fallback:   fallback,
		localizers: make(map[string]*i18n.Localizer),
	}

	// Standardsprache steht im Matcher an erster Stelle
	tags := []language.Tag{fallback}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		// Sprachcode aus dem Dateinamen extrahieren (z.B. "de.json" -> "de")
		code := strings.TrimSuffix(path.Base(file), path.Ext(file))
		t.localizers[code] = i18n.NewLocalizer(bundle, code, fallback.String())
		if tag := language.Make(code); tag != fallback {
			tags = append(tags, tag)
		}
	}
	t.tags = tags
	t.matcher = language.NewMatcher(tags)

	if _, ok := t.localizers[fallback.String()]; !ok {
		return nil, fmt.Errorf("no translations for default language %s", fallback)
	}

	return t, nil
}

// Supported meldet, ob für die Sprache Übersetzungen vorliegen
func (t *Translator) Supported(lang string) bool {
	_, ok := t.localizers[lang]
	return ok
}

// Localize übersetzt eine Nachricht; unbekannte IDs liefern die ID selbst
func (t *Translator) Localize(lang, id string, data map[string]interface{}) string {
	localizer, ok := t.localizers[lang]
	if !ok {
		localizer = t.localizers[t.fallback.String()]
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Debugf("Missing translation for %s (%s): %v", id, lang, err)
		return id
	}
	return msg
}

// negotiate wählt die beste Sprache aus dem Accept-Language-Header
func (t *Translator) negotiate(header string) string {
	if header == "" {
		return t.fallback.String()
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return t.fallback.String()
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.fallback.String()
	}
	base, _ := t.tags[idx].Base()
	return base.String()
}

// I18n erstellt eine Middleware, die Sprache und Localizer im Kontext ablegt.
// Reihenfolge: ?lang= (wird in der Session gespeichert), Session, Accept-Language.
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		if lang != "" && translator.Supported(lang) {
			session.Set(sessionLanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Warnf("Failed to save language preference: %v", err)
			}
		} else if stored, ok := session.Get(sessionLanguageKey).(string); ok && translator.Supported(stored) {
			lang = stored
		} else {
			lang = translator.negotiate(c.GetHeader("Accept-Language"))
		}

		c.Set(contextLanguage, lang)
		c.Set(contextLocalizer, translator)
		c.Next()
	}
}

// T übersetzt eine Nachricht in der Sprache der aktuellen Anfrage
func T(c *gin.Context, id string, data map[string]interface{}) string {
	v, ok := c.Get(contextLocalizer)
	if !ok {
		return id
	}
	translator := v.(*Translator)
	return translator.Localize(c.GetString(contextLanguage), id, data)
}
