package shared

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Debug("hidden")
	l.Info("planned", "title", "Berserk")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "planned")
	assert.Contains(t, buf.String(), "Berserk")

	SetVerbose(l, true)
	assert.Equal(t, log.DebugLevel, l.GetLevel())
	l.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	SetVerbose(l, false)
	assert.Equal(t, log.InfoLevel, l.GetLevel())
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTitleURL(t *testing.T) {
	assert.Equal(t, "https://mangadex.org/title/abc", TitleURL("abc"))
}
