// Package patent defines the patent record returned by every search mode.
package patent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// LinkPrefix is the TIPO GPSS permalink prefix; the publication number is appended.
const LinkPrefix = "https://tiponet.tipo.gov.tw/gpss4/gpsskmc/gpssbkm?!!FRURL"

// Record is one patent as returned by the backend. Records are read-only
// once decoded.
type Record struct {
	// Sequence is the 1-based position the backend assigned (序號).
	Sequence int

	// Title is the patent name (專利名稱)
	Title string

	// PublicationNumber is the publication/announcement number (公開公告號)
	PublicationNumber string

	// Applicants may arrive as a single string or a list (申請人)
	Applicants []string

	Inventors []string

	// Country is a two-letter office code, e.g. TW (國家)
	Country string

	Abstract string

	// Claims is the claim text (專利範圍)
	Claims string

	// Features are AI-generated technical features (技術特徵)
	Features []string

	// Effects are AI-generated technical effects (技術功效)
	Effects []string

	// Link is the permalink when the backend supplied one (專利連結)
	Link string

	ApplicationDate string
	PublicationDate string
	IPCClasses      []string
}

// ResolvedLink returns Link, or one derived from the publication number.
func (r Record) ResolvedLink() string {
	if r.Link != "" {
		return r.Link
	}
	return DeriveLink(r.PublicationNumber)
}

// DeriveLink builds the GPSS permalink for a publication number.
// Returns "" when pubNo is blank.
func DeriveLink(pubNo string) string {
	pubNo = strings.TrimSpace(pubNo)
	if pubNo == "" || pubNo == "N/A" {
		return ""
	}
	return LinkPrefix + pubNo
}

// wireRecord is the JSON shape. The backend uses Chinese column keys for
// processed results and English keys for raw search hits; both are accepted
// and the Chinese keys win when both are present.
type wireRecord struct {
	Sequence flexInt  `json:"序號"`
	Title    string   `json:"專利名稱"`
	PubNo    string   `json:"公開公告號"`
	Appl     flexList `json:"申請人"`
	Inv      flexList `json:"發明人"`
	Country  string   `json:"國家"`
	Abstract string   `json:"摘要"`
	Claims   string   `json:"專利範圍"`
	Features flexList `json:"技術特徵"`
	Effects  flexList `json:"技術功效"`
	Link     string   `json:"專利連結"`
	AppDate  string   `json:"申請日"`
	PubDate  string   `json:"公開日"`
	IPC      flexList `json:"IPC分類"`

	EnSequence flexInt  `json:"sequence"`
	EnTitle    string   `json:"title"`
	EnPubNo    string   `json:"publication_number"`
	EnPatentNo string   `json:"patent_number"`
	EnAppl     flexList `json:"applicants"`
	EnInv      flexList `json:"inventors"`
	EnCountry  string   `json:"country"`
	EnAbstract string   `json:"abstract"`
	EnClaims   string   `json:"claims"`
	EnFeatures flexList `json:"technical_features"`
	EnEffects  flexList `json:"technical_effects"`
	EnLink     string   `json:"link"`
	EnAppDate  string   `json:"application_date"`
	EnPubDate  string   `json:"publication_date"`
	EnIPC      flexList `json:"ipc_classes"`
}

// UnmarshalJSON accepts both the Chinese-keyed and English-keyed shapes.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Record{
		Sequence:          firstInt(int(w.Sequence), int(w.EnSequence)),
		Title:             first(w.Title, w.EnTitle),
		PublicationNumber: first(w.PubNo, w.EnPubNo, w.EnPatentNo),
		Applicants:        firstList(w.Appl, w.EnAppl),
		Inventors:         firstList(w.Inv, w.EnInv),
		Country:           first(w.Country, w.EnCountry),
		Abstract:          first(w.Abstract, w.EnAbstract),
		Claims:            first(w.Claims, w.EnClaims),
		Features:          firstList(w.Features, w.EnFeatures),
		Effects:           firstList(w.Effects, w.EnEffects),
		Link:              first(w.Link, w.EnLink),
		ApplicationDate:   first(w.AppDate, w.EnAppDate),
		PublicationDate:   first(w.PubDate, w.EnPubDate),
		IPCClasses:        firstList(w.IPC, w.EnIPC),
	}
	return nil
}

// jsonRecord is the outbound shape, keyed the way the backend's export
// endpoint expects.
type jsonRecord struct {
	Sequence   int      `json:"序號,omitempty"`
	Title      string   `json:"專利名稱"`
	PubNo      string   `json:"公開公告號"`
	Applicants []string `json:"申請人"`
	Inventors  []string `json:"發明人,omitempty"`
	Country    string   `json:"國家,omitempty"`
	Abstract   string   `json:"摘要"`
	Claims     string   `json:"專利範圍"`
	Features   []string `json:"技術特徵"`
	Effects    []string `json:"技術功效"`
	Link       string   `json:"專利連結,omitempty"`
	AppDate    string   `json:"申請日,omitempty"`
	PubDate    string   `json:"公開日,omitempty"`
	IPC        []string `json:"IPC分類,omitempty"`
}

// MarshalJSON emits the Chinese-keyed shape.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonRecord{
		Sequence:   r.Sequence,
		Title:      r.Title,
		PubNo:      r.PublicationNumber,
		Applicants: nonNil(r.Applicants),
		Inventors:  r.Inventors,
		Country:    r.Country,
		Abstract:   r.Abstract,
		Claims:     r.Claims,
		Features:   nonNil(r.Features),
		Effects:    nonNil(r.Effects),
		Link:       r.Link,
		AppDate:    r.ApplicationDate,
		PubDate:    r.PublicationDate,
		IPC:        r.IPCClasses,
	})
}

// flexList decodes a JSON string, a list of scalars, or null.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*l = nil
		} else {
			*l = flexList{s}
		}
		return nil
	}

	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list: %w", err)
	}
	out := make(flexList, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(it))
		if v != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*n = flexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, convErr := strconv.Atoi(strings.TrimSpace(s))
		if convErr != nil {
			*n = 0
			return nil
		}
		*n = flexInt(v)
		return nil
	}
	*n = 0
	return nil
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func firstList(a, b flexList) []string {
	if len(a) > 0 {
		return []string(a)
	}
	if len(b) > 0 {
		return []string(b)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Truncate shortens s to at most max runes. A cut string ends in "..."
// which counts toward max.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
