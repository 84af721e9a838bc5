package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"golang.org/x/text/language"
)

// LocaleKey is the gin context key of the negotiated locale
const LocaleKey = "locale"

// Locale negotiates the request locale from Accept-Language against the
// supported tags and stores it in the request context, where reads of
// localized entities pick it up. The first supported tag is the default.
// Unsupported or missing headers leave the locale empty.
func Locale(supported ...string) gin.HandlerFunc {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		if tag, err := language.Parse(s); err == nil {
			tags = append(tags, tag)
		}
	}
	var matcher language.Matcher
	if len(tags) > 0 {
		matcher = language.NewMatcher(tags)
	}

	return func(c *gin.Context) {
		locale := negotiate(c.GetHeader("Accept-Language"), matcher, tags)
		if locale != "" {
			c.Set(LocaleKey, locale)
			c.Header("Content-Language", locale)
			c.Request = c.Request.WithContext(store.WithLocale(c.Request.Context(), locale))
		}
		c.Next()
	}
}

// negotiate returns the best locale for header. Without a supported list
// the first well-formed tag of the header wins.
func negotiate(header string, matcher language.Matcher, supported []language.Tag) string {
	if header == "" {
		return ""
	}
	prefs, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(prefs) == 0 {
		return ""
	}
	if matcher == nil {
		return prefs[0].String()
	}
	_, index, confidence := matcher.Match(prefs...)
	if confidence == language.No {
		return ""
	}
	return supported[index].String()
}

// GetLocale returns the locale negotiated by Locale
func GetLocale(c *gin.Context) string {
	return c.GetString(LocaleKey)
}
