// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n localizes outgoing mail.
package i18n

import (
	"context"
	"embed"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

// Supported lists the available languages, default first.
var Supported = []language.Tag{language.English, language.German}

var (
	bundle   *i18n.Bundle
	initOnce sync.Once
	initErr  error
)

type localizerContextKey struct{}

// Init loads the embedded translations. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
		for _, file := range []string{"translations/active.en.toml", "translations/active.de.toml"} {
			if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
				initErr = err
				return
			}
		}
		bundle = b
	})
	return initErr
}

// WithLocale stores a localizer for lang in the context.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	if err := Init(); err != nil {
		return ctx
	}
	return context.WithValue(ctx, localizerContextKey{}, i18n.NewLocalizer(bundle, lang.String()))
}

// T translates a message by ID, optionally with template data.
// Unknown IDs come back unchanged.
func T(ctx context.Context, messageID string, data ...map[string]any) string {
	if err := Init(); err != nil {
		return messageID
	}
	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}
	msg, err := localizer(ctx).Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}

// MatchLanguage picks the best supported language for an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(language.NewMatcher(Supported), acceptLanguage)
	base, _ := tag.Base()
	for _, s := range Supported {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return language.English
}

func localizer(ctx context.Context) *i18n.Localizer {
	if l, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer); ok && l != nil {
		return l
	}
	return i18n.NewLocalizer(bundle, language.English.String())
}
