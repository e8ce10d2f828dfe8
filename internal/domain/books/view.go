package books

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PageView is the page shape shared by both schema generations.
type PageView struct {
	PageNumber         int    `json:"page_number"`
	IllustrationPrompt string `json:"illustration_prompt"`
	Dialogue           string `json:"dialogue"`
	IllustrationImage  string `json:"illustration_image"`
}

type SubStoryView struct {
	SubStoryNumber int        `json:"sub_story_number,omitempty"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Sections       []PageView `json:"sections"`
}

type ReadingKind string

const (
	ReadingKindFlat    ReadingKind = "flat"
	ReadingKindGrouped ReadingKind = "grouped"
)

// ReadingVersion is either FlatReading or GroupedReading. Consumers switch on the
// concrete type; there is no third arm.
type ReadingVersion interface {
	Kind() ReadingKind
	isReadingVersion()
}

// FlatReading is the legacy schema: pages owned directly by the chapter.
type FlatReading struct {
	Sections []PageView `json:"sections"`
}

func (FlatReading) Kind() ReadingKind { return ReadingKindFlat }
func (FlatReading) isReadingVersion() {}

// GroupedReading is the newer schema: pages grouped under numbered sub-stories.
type GroupedReading struct {
	SubStories []SubStoryView `json:"sub_stories"`
}

func (GroupedReading) Kind() ReadingKind { return ReadingKindGrouped }
func (GroupedReading) isReadingVersion() {}

type ChapterView struct {
	Title            string
	NarrationVersion string
	ReadingVersion   ReadingVersion
}

type chapterViewJSON struct {
	Title            string          `json:"title"`
	NarrationVersion string          `json:"narration_version"`
	ReadingVersion   json.RawMessage `json:"reading_version"`
}

func (c ChapterView) MarshalJSON() ([]byte, error) {
	var rv any
	switch v := c.ReadingVersion.(type) {
	case GroupedReading:
		rv = GroupedReading{SubStories: nonNilSubStories(v.SubStories)}
	case *GroupedReading:
		rv = GroupedReading{SubStories: nonNilSubStories(v.SubStories)}
	case FlatReading:
		rv = FlatReading{Sections: nonNilPages(v.Sections)}
	case *FlatReading:
		rv = FlatReading{Sections: nonNilPages(v.Sections)}
	case nil:
		rv = FlatReading{Sections: []PageView{}}
	default:
		return nil, fmt.Errorf("unsupported reading version %T", c.ReadingVersion)
	}
	raw, err := json.Marshal(rv)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chapterViewJSON{
		Title:            c.Title,
		NarrationVersion: c.NarrationVersion,
		ReadingVersion:   raw,
	})
}

func (c *ChapterView) UnmarshalJSON(data []byte) error {
	var aux chapterViewJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	rv, err := DecodeReadingVersion(aux.ReadingVersion)
	if err != nil {
		return fmt.Errorf("chapter %q: %w", aux.Title, err)
	}
	c.Title = aux.Title
	c.NarrationVersion = aux.NarrationVersion
	c.ReadingVersion = rv
	return nil
}

// DecodeReadingVersion picks the grouped arm when a non-null sub_stories key is
// present and the flat arm otherwise.
func DecodeReadingVersion(raw json.RawMessage) (ReadingVersion, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return FlatReading{Sections: []PageView{}}, nil
	}
	var probe struct {
		Sections   json.RawMessage `json:"sections"`
		SubStories json.RawMessage `json:"sub_stories"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode reading_version: %w", err)
	}
	if len(probe.SubStories) > 0 && !bytes.Equal(probe.SubStories, []byte("null")) {
		var g GroupedReading
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("decode sub_stories: %w", err)
		}
		g.SubStories = nonNilSubStories(g.SubStories)
		return g, nil
	}
	var f FlatReading
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode sections: %w", err)
	}
	f.Sections = nonNilPages(f.Sections)
	return f, nil
}

// BookView is the canonical book structure served to clients and accepted on save.
type BookView struct {
	BookTitle    string        `json:"book_title"`
	ChapterCount int           `json:"chapter_count"`
	Chapters     []ChapterView `json:"chapters"`
}

func nonNilPages(in []PageView) []PageView {
	if in == nil {
		return []PageView{}
	}
	return in
}

func nonNilSubStories(in []SubStoryView) []SubStoryView {
	if in == nil {
		return []SubStoryView{}
	}
	out := make([]SubStoryView, len(in))
	for i, s := range in {
		s.Sections = nonNilPages(s.Sections)
		out[i] = s
	}
	return out
}
