package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestCatalog(t *testing.T, lang string) *Catalog {
	t.Helper()
	c, err := New(lang)
	if err != nil {
		t.Fatalf("New(%q): %v", lang, err)
	}
	return c
}

func localized(t *testing.T, lang string) context.Context {
	t.Helper()
	c := newTestCatalog(t, "en")
	return WithLocalizer(context.Background(), c.NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := localized(t, "en")

	if got := T(ctx, "SubmissionUndeliverable"); got != "Unable to deliver your submission to a grader for grading." {
		t.Errorf("T(SubmissionUndeliverable) = %q", got)
	}
	if got := T(ctx, "PartiallyCorrect"); got != "Partially correct" {
		t.Errorf("T(PartiallyCorrect) = %q", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := localized(t, "ru")

	if got := T(ctx, "Correct"); got != "Верно" {
		t.Errorf("T(Correct) = %q, want 'Верно'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 submission waiting to be graded."},
		{"en", 5, "5 submissions waiting to be graded."},
		{"ru", 1, "1 ответ ожидает проверки."},
		{"ru", 3, "3 ответа ожидают проверки."},
		{"ru", 5, "5 ответов ожидают проверки."},
	}
	for _, tt := range tests {
		if got := Tp(localized(t, tt.lang), "SubmissionsPending", tt.count); got != tt.want {
			t.Errorf("Tp(%s, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := localized(t, "en")

	got := Td(ctx, "InvalidAnswer", map[string]any{"Detail": "x is not a number"})
	if got != "Could not interpret your answer: x is not a number" {
		t.Errorf("Td(InvalidAnswer) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	if got := T(localized(t, "en"), "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
	if got := T(context.Background(), "Correct"); got != "Correct" {
		t.Errorf("T without localizer = %q", got)
	}
}

func TestNewRejectsBadLanguage(t *testing.T) {
	if _, err := New("not a language!"); err == nil {
		t.Error("expected an error for an invalid language tag")
	}
}

func TestMiddleware(t *testing.T) {
	c := newTestCatalog(t, "en")
	var got string
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Incorrect")
	}))

	tests := []struct {
		header string
		want   string
	}{
		{"ru-RU,ru;q=0.9,en;q=0.8", "Неверно"},
		{"de", "Incorrect"},
		{"", "Incorrect"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Accept-Language", tt.header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.header, got, tt.want)
		}
	}
}
