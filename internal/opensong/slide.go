package opensong

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// SlideDocument is the decoded slide content endpoint response. The root
// element name varies between OpenSong builds, so only the nested <slide>
// container is matched.
type SlideDocument struct {
	Slide *slideContent `xml:"slide"`
}

type slideContent struct {
	Title   string       `xml:"title"`
	Authors []string     `xml:"author"`
	CCLI    string       `xml:"ccli"`
	Groups  []verseGroup `xml:"slides"`
}

// verseGroup collects every <body> element beneath a <slides> container,
// regardless of nesting depth, in document order.
type verseGroup struct {
	Bodies []string
}

func (g *verseGroup) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" {
				var body string
				if err := d.DecodeElement(&body, &t); err != nil {
					return err
				}
				g.Bodies = append(g.Bodies, body)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

// DecodeSlideDocument parses a slide content document with a hardened
// decoder: strict mode, no entity expansion.
func DecodeSlideDocument(r io.Reader) (*SlideDocument, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = make(map[string]string)

	var doc SlideDocument
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &doc, nil
}

// Fields is the extracted, display-ready subset of a slide document.
type Fields struct {
	Title   string
	Authors []string // document order
	CCLI    string   // empty when the song carries no CCLI number
	Verses  [][]string
}

// Fields extracts title, authors, CCLI number and verse blocks. A document
// without a <slide> container is malformed; everything else is optional.
func (d *SlideDocument) Fields() (Fields, error) {
	if d == nil || d.Slide == nil {
		return Fields{}, ErrMissingSlide
	}

	f := Fields{
		Title: strings.TrimSpace(d.Slide.Title),
		CCLI:  strings.TrimSpace(d.Slide.CCLI),
	}
	for _, a := range d.Slide.Authors {
		if a = strings.TrimSpace(a); a != "" {
			f.Authors = append(f.Authors, a)
		}
	}
	for _, g := range d.Slide.Groups {
		for _, body := range g.Bodies {
			if body == "" {
				continue
			}
			f.Verses = append(f.Verses, splitLines(Sanitize(body)))
		}
	}
	return f, nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	// A trailing newline terminates the last line rather than opening an
	// empty one.
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
