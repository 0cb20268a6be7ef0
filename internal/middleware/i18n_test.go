package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func runI18N(t *testing.T, lookup CountryLookup, mutate func(*http.Request)) (locale, country string) {
	t.Helper()
	handler := I18N("en", lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	if mutate != nil {
		mutate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return locale, country
}

func TestI18NLocaleHeaderWins(t *testing.T) {
	locale, _ := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("X-Locale", "ja-JP")
		r.Header.Set("Accept-Language", "es")
	})
	if locale != "ja" {
		t.Fatalf("locale = %q, want ja", locale)
	}
}

func TestI18NAcceptLanguage(t *testing.T) {
	locale, _ := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.5")
	})
	if locale != "pt" {
		t.Fatalf("locale = %q, want pt", locale)
	}
}

func TestI18NUnsupportedFallsBack(t *testing.T) {
	locale, _ := runI18N(t, nil, func(r *http.Request) {
		r.Header.Set("X-Locale", "not-a-locale")
	})
	if locale != "en" {
		t.Fatalf("locale = %q, want en", locale)
	}
}

func TestI18NCountryLookup(t *testing.T) {
	lookup := func(ip string) (string, error) {
		if ip != "203.0.113.9" {
			return "", errors.New("unexpected ip " + ip)
		}
		return "jp", nil
	}
	_, country := runI18N(t, lookup, nil)
	if country != "JP" {
		t.Fatalf("country = %q, want JP", country)
	}
}

func TestI18NLookupErrorLeavesCountryEmpty(t *testing.T) {
	lookup := func(ip string) (string, error) { return "", errors.New("db closed") }
	_, country := runI18N(t, lookup, nil)
	if country != "" {
		t.Fatalf("country = %q, want empty", country)
	}
}
