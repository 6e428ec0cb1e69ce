package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtensions_Match(t *testing.T) {
	ext, ok := DefaultExtensions.Match("Biology.APKG")
	assert.True(t, ok)
	assert.Equal(t, ".apkg", ext)

	ext, ok = DefaultExtensions.Match("notes.tar.gz")
	assert.True(t, ok)
	assert.Equal(t, ".tar.gz", ext)

	_, ok = DefaultExtensions.Match("notes.pdf")
	assert.False(t, ok)

	// Имя из одного расширения не считается файлом колоды
	_, ok = DefaultExtensions.Match(".apkg")
	assert.False(t, ok)
}

func TestExtensions_DeriveTitle(t *testing.T) {
	assert.Equal(t, "my deck v2", DefaultExtensions.DeriveTitle("my_deck-v2.apkg"))
	assert.Equal(t, "organic chem", DefaultExtensions.DeriveTitle("organic-chem.tar.gz"))
	assert.Equal(t, "Spanish  verbs", DefaultExtensions.DeriveTitle("Spanish__verbs.ZIP"))
	assert.Equal(t, "readme.txt", DefaultExtensions.DeriveTitle("readme.txt"))
}

func TestDeckRecord_Normalize(t *testing.T) {
	rec := DeckRecord{StoragePath: "decks/1700000000000_ab12cd34_calc_1.apkg", CourseCode: " cs101 "}
	rec.Normalize(DefaultExtensions)

	assert.Equal(t, "1700000000000_ab12cd34_calc_1.apkg", rec.FileName)
	assert.Equal(t, "1700000000000 ab12cd34 calc 1", rec.Title)
	assert.Equal(t, "CS101", rec.CourseCode)
}

func TestDeckRecord_Key(t *testing.T) {
	assert.Equal(t, "abc", (&DeckRecord{ID: "abc", FileName: "a.apkg"}).Key())
	assert.Equal(t, "a.apkg", (&DeckRecord{FileName: "a.apkg"}).Key())
}

func TestDeckRecord_SafeDownloadCount(t *testing.T) {
	assert.Equal(t, int64(0), (&DeckRecord{DownloadCount: -3}).SafeDownloadCount())
	assert.Equal(t, int64(7), (&DeckRecord{DownloadCount: 7}).SafeDownloadCount())
}

func TestDeckUpdate_IsEmpty(t *testing.T) {
	title := "Calculus"
	assert.True(t, DeckUpdate{}.IsEmpty())
	assert.False(t, DeckUpdate{Title: &title}.IsEmpty())
}

func TestManifestEntry_ToRecord(t *testing.T) {
	rec := ManifestEntry{FileName: "my_deck-v2.apkg", Size: 10, URL: "decks/my_deck-v2.apkg"}.ToRecord(DefaultExtensions)

	assert.Empty(t, rec.ID)
	assert.Equal(t, "my deck v2", rec.Title)
	assert.Equal(t, "my_deck-v2.apkg", rec.Key())
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "1.0 MiB", HumanSize(1048576))
	assert.Equal(t, "0 B", HumanSize(-1))
}

func TestParseExtensions(t *testing.T) {
	assert.Equal(t, Extensions{".apkg", ".tar.gz"}, ParseExtensions([]string{" APKG ", "", ".tar.gz"}))
}
