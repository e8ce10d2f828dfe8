package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/storybook-admin/internal/domain/books"
)

// Pipeline runs have written a few shapes over time: a book object or a bare chapter
// array, reading_version nested or inlined on the chapter, and page images as
// illustration_image or as image_url / image_gcs_key. Decode accepts all of them.

type rawBook struct {
	BookTitle    string       `json:"book_title"`
	Title        string       `json:"title"`
	ChapterCount *int         `json:"chapter_count"`
	Chapters     []rawChapter `json:"chapters"`
}

type rawChapter struct {
	Title            string          `json:"title"`
	ChapterTitle     string          `json:"chapter_title"`
	NarrationVersion string          `json:"narration_version"`
	ReadingVersion   json.RawMessage `json:"reading_version"`
	Sections         []rawPage       `json:"sections"`
	SubStories       []rawSubStory   `json:"sub_stories"`
}

type rawReading struct {
	Sections   []rawPage     `json:"sections"`
	SubStories []rawSubStory `json:"sub_stories"`
}

type rawSubStory struct {
	SubStoryNumber int       `json:"sub_story_number"`
	Title          string    `json:"title"`
	Content        *string   `json:"content"`
	Sections       []rawPage `json:"sections"`
	Pages          []rawPage `json:"pages"`
}

type rawPage struct {
	PageNumber         int    `json:"page_number"`
	IllustrationPrompt string `json:"illustration_prompt"`
	Dialogue           string `json:"dialogue"`
	IllustrationImage  string `json:"illustration_image"`
	ImageURL           string `json:"image_url"`
	ImageGCSKey        string `json:"image_gcs_key"`
}

// Decode turns a snapshot document into the canonical book view. safeTitle supplies
// the book title when the document does not carry one.
func Decode(data []byte, safeTitle string) (*books.BookView, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty snapshot")
	}

	var rb rawBook
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rb.Chapters); err != nil {
			return nil, fmt.Errorf("decode snapshot chapters: %w", err)
		}
	} else if err := json.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	view := &books.BookView{
		BookTitle: firstNonEmpty(rb.BookTitle, rb.Title, books.DisplayTitleFromSlug(safeTitle)),
		Chapters:  make([]books.ChapterView, 0, len(rb.Chapters)),
	}
	for i, rc := range rb.Chapters {
		cv, err := rc.view()
		if err != nil {
			return nil, fmt.Errorf("chapter %d: %w", i+1, err)
		}
		view.Chapters = append(view.Chapters, cv)
	}
	view.ChapterCount = len(view.Chapters)
	if rb.ChapterCount != nil && *rb.ChapterCount > view.ChapterCount {
		view.ChapterCount = *rb.ChapterCount
	}
	return view, nil
}

func (rc rawChapter) view() (books.ChapterView, error) {
	reading := rawReading{Sections: rc.Sections, SubStories: rc.SubStories}
	rv := bytes.TrimSpace(rc.ReadingVersion)
	if len(rv) > 0 && !bytes.Equal(rv, []byte("null")) {
		if err := json.Unmarshal(rv, &reading); err != nil {
			return books.ChapterView{}, fmt.Errorf("decode reading_version: %w", err)
		}
	}

	cv := books.ChapterView{
		Title:            firstNonEmpty(rc.Title, rc.ChapterTitle),
		NarrationVersion: rc.NarrationVersion,
	}
	if reading.SubStories != nil {
		grouped := books.GroupedReading{SubStories: make([]books.SubStoryView, 0, len(reading.SubStories))}
		for i, rs := range reading.SubStories {
			grouped.SubStories = append(grouped.SubStories, rs.view(i))
		}
		cv.ReadingVersion = grouped
		return cv, nil
	}
	cv.ReadingVersion = books.FlatReading{Sections: pageViews(reading.Sections)}
	return cv, nil
}

func (rs rawSubStory) view(i int) books.SubStoryView {
	number := rs.SubStoryNumber
	if number < 1 {
		number = i + 1
	}
	content := ""
	if rs.Content != nil {
		content = *rs.Content
	}
	pages := rs.Sections
	if pages == nil {
		pages = rs.Pages
	}
	return books.SubStoryView{
		SubStoryNumber: number,
		Title:          rs.Title,
		Content:        content,
		Sections:       pageViews(pages),
	}
}

func pageViews(in []rawPage) []books.PageView {
	out := make([]books.PageView, 0, len(in))
	for i, p := range in {
		number := p.PageNumber
		if number < 1 {
			number = i + 1
		}
		out = append(out, books.PageView{
			PageNumber:         number,
			IllustrationPrompt: p.IllustrationPrompt,
			Dialogue:           p.Dialogue,
			IllustrationImage:  firstNonEmpty(p.IllustrationImage, p.ImageURL, p.ImageGCSKey),
		})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
