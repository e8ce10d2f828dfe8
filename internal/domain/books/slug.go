package books

import (
	"strings"
	"unicode"
)

// SafeTitle derives the slug for a new book: characters other than ASCII letters,
// digits and whitespace are dropped, then whitespace runs become single underscores.
// Call it once at creation; existing books keep their stored slug.
func SafeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "_")
}

// DisplayTitleFromSlug restores spaces for messages addressed to the pipeline worker.
func DisplayTitleFromSlug(safeTitle string) string {
	return strings.ReplaceAll(safeTitle, "_", " ")
}

const bookKeyRoot = "books/"

// BookPrefix is the blob prefix owning every object of a book.
func BookPrefix(safeTitle string) string {
	return bookKeyRoot + safeTitle + "/"
}

// SnapshotKey is where the pipeline writes its final denormalized book document.
func SnapshotKey(safeTitle string) string {
	return BookPrefix(safeTitle) + "chapters_final.json"
}
