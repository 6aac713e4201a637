package domain

import "fmt"

type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"

	DefaultLanguage = LanguageJavaScript
)

const (
	javaScriptTemplate = "// Start coding...\nconsole.log(\"Hello\");"
	pythonTemplate     = "# Start coding...\nprint(\"Hello\")"
)

// ParseLanguage rejects anything outside the supported set.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(s); l {
	case LanguageJavaScript, LanguagePython:
		return l, nil
	default:
		return "", fmt.Errorf("unsupported language %q: %w", s, ErrValidation)
	}
}

func (l Language) Valid() bool {
	_, err := ParseLanguage(string(l))
	return err == nil
}

// Template returns the starter code a new room gets for l.
func (l Language) Template() string {
	if l == LanguagePython {
		return pythonTemplate
	}
	return javaScriptTemplate
}
