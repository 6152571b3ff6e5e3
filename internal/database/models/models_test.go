package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionStatusOrdering(t *testing.T) {
	graded := []SubmissionStatus{StatusOK, StatusWA, StatusTLE, StatusMLE, StatusRTE}
	for _, s := range graded {
		assert.False(t, s.IsSpecial(), "%s must not be special", s)
		assert.False(t, s.IsFatal(), "%s must not be fatal", s)
		assert.Less(t, s, StatusPending)
	}

	assert.True(t, StatusPending.IsSpecial())
	assert.False(t, StatusPending.IsFatal())

	fatal := []SubmissionStatus{StatusCompilationError, StatusCheckerCompilationError, StatusJudgeError}
	for _, s := range fatal {
		assert.True(t, s.IsSpecial(), "%s must be special", s)
		assert.True(t, s.IsFatal(), "%s must be fatal", s)
		assert.Greater(t, s, StatusPending)
	}

	// Lower means better among graded outcomes.
	assert.Less(t, StatusOK, StatusWA)
}

func TestLanguageForFilename(t *testing.T) {
	lang, ok := LanguageForFilename("main.c")
	assert.True(t, ok)
	assert.Equal(t, LangC11, lang)

	for _, name := range []string{"sol.cpp", "sol.cc", "sol.cxx"} {
		lang, ok := LanguageForFilename(name)
		assert.True(t, ok, name)
		assert.Equal(t, LangCPP17, lang)
	}

	lang, ok = LanguageForFilename("sol.pas")
	assert.True(t, ok)
	assert.Equal(t, LangPascal, lang)

	_, ok = LanguageForFilename("README.md")
	assert.False(t, ok)
}
