package util

import (
	"strings"
	"sync"
	"text/template"
)

// promptFuncs are available to every instruction template.
var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"default": func(fallback, v string) string {
		if v == "" {
			return fallback
		}
		return v
	},
	// truncate shortens s to at most n runes, marking the cut with "...".
	"truncate": func(n int, s string) string {
		r := []rune(s)
		if n <= 0 || len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
}

var templates sync.Map // text -> *template.Template

// RenderTemplate executes text as a text/template against data. Parsed
// templates are cached by their text. Text without actions is returned as is.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var tmpl *template.Template
	if cached, ok := templates.Load(text); ok {
		tmpl = cached.(*template.Template)
	} else {
		parsed, err := template.New("instructions").Funcs(promptFuncs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return "", err
		}
		templates.Store(text, parsed)
		tmpl = parsed
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
