package forms

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	pageHeight  = 842.0
	margin      = 57.0
	valueColumn = 200.0
	lineHeight  = 15.0
	wrapWidth   = 60
)

type font struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type text struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  font       `json:"font"`
}

type content struct {
	Text []text `json:"text"`
}

type page struct {
	Content content `json:"content"`
}

type document struct {
	Paper  string          `json:"paper"`
	Origin string          `json:"origin"`
	Pages  map[string]page `json:"pages"`
}

var (
	titleFont = font{Name: "Helvetica-Bold", Size: 16}
	headFont  = font{Name: "Helvetica-Bold", Size: 11}
	bodyFont  = font{Name: "Helvetica", Size: 10}
	labelFont = font{Name: "Helvetica-Bold", Size: 10}
	smallFont = font{Name: "Helvetica", Size: 8}
)

// writer lays out lines top to bottom, starting a new page at the bottom margin.
type writer struct {
	pages [][]text
	y     float64
}

func newWriter() *writer {
	w := &writer{}
	w.newPage()
	return w
}

func (w *writer) newPage() {
	w.pages = append(w.pages, nil)
	w.y = pageHeight - margin
}

func (w *writer) put(x float64, value string, f font) {
	cur := len(w.pages) - 1
	w.pages[cur] = append(w.pages[cur], text{Value: value, Pos: [2]float64{x, w.y}, Font: f})
}

func (w *writer) advance(d float64) {
	w.y -= d
	if w.y < margin {
		w.newPage()
	}
}

func (w *writer) line(value string, f font) {
	w.put(margin, clean(value), f)
	w.advance(lineHeight)
}

func (w *writer) field(label, value string) {
	lines := wrap(clean(value), wrapWidth)
	w.put(margin, label, labelFont)
	for i, l := range lines {
		if i > 0 {
			w.advance(lineHeight)
		}
		w.put(valueColumn, l, bodyFont)
	}
	w.advance(lineHeight)
}

func (w *writer) section(title string) {
	w.advance(lineHeight / 2)
	w.line(title, headFont)
}

func (w *writer) document() document {
	d := document{Paper: "A4P", Origin: "LowerLeft", Pages: make(map[string]page, len(w.pages))}
	for i, texts := range w.pages {
		d.Pages[strconv.Itoa(i+1)] = page{Content: content{Text: texts}}
	}
	return d
}

func layout(req Request, ref string) document {
	f, s := req.Farmer, req.Scheme
	w := newWriter()

	w.line("KisaanSeva - Government Scheme Application", titleFont)
	w.line("Scheme: "+s.NameEn, headFont)
	w.advance(lineHeight / 2)
	w.line("Date: "+req.At.Format("02-01-2006"), bodyFont)
	w.line("Application Reference: "+ref, bodyFont)

	w.section("APPLICANT DETAILS")
	w.field("Farmer ID", f.FarmerID)
	w.field("Name", f.Name)
	w.field("Phone", f.Phone)
	w.field("District", f.District)
	w.field("State", f.State)
	w.field("PIN Code", f.PinCode)
	w.field("Land Area", fmt.Sprintf("%g %s", f.LandArea, orNA(f.LandUnit)))
	if f.Profile.OwnershipType != "" {
		w.field("Ownership", f.Profile.OwnershipType)
	}
	if f.Profile.IrrigationType != "" {
		w.field("Irrigation", f.Profile.IrrigationType)
	}

	if len(f.Crops) > 0 {
		w.section("CROPS")
		for _, c := range f.Crops {
			w.field(c.CropName, fmt.Sprintf("%s, %g %s", orNA(c.Season), c.Area, orNA(f.LandUnit)))
		}
	}

	w.section("SCHEME DETAILS")
	w.field("Scheme Name", s.NameEn)
	w.field("Ministry", deref(s.Ministry))
	w.field("Benefit Type", deref(s.BenefitType))
	w.field("Benefit Amount", deref(s.BenefitAmount))
	if s.HowToApply != nil {
		w.field("How to Apply", *s.HowToApply)
	}

	if len(f.Documents) > 0 {
		w.section("DOCUMENTS ON FILE")
		for _, d := range f.Documents {
			status := "unverified"
			if d.Verified {
				status = "verified"
			}
			w.field(humanize(d.DocType), status)
		}
	}

	w.advance(lineHeight)
	if req.AgentName != "" {
		w.line("Generated by Agent: "+req.AgentName, bodyFont)
	}
	w.line("Applicant Signature: ____________________", bodyFont)
	w.advance(lineHeight / 2)
	w.line("This form was auto-generated by KisaanSeva platform. Please verify all details before submission.", smallFont)

	return w.document()
}

// clean keeps runes the standard PDF fonts can encode.
func clean(s string) string {
	if s == "" {
		return "N/A"
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return ' '
		}
		if r < 0x20 || r > 0xFF || r == utf8.RuneError {
			return '?'
		}
		return r
	}, s)
}

func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{s}
	}
	var (
		lines []string
		cur   strings.Builder
	)
	for _, word := range words {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	return append(lines, cur.String())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func humanize(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
