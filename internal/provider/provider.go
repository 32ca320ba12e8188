package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Source is the read side of a Subsonic-compatible server. A false second
// return means the call failed or returned nothing usable; the failure has
// already been logged by the implementation.
type Source interface {
	NowPlaying(ctx context.Context) (*NowPlaying, bool)
	Album(ctx context.Context, id string) (*Album, bool)
	CoverArt(ctx context.Context, id string) ([]byte, bool)
}

// NowPlaying is the decoded "nowPlaying" object of a getNowPlaying response.
type NowPlaying struct {
	Entries EntryList `json:"entry"`
}

// First returns the entry the sync loop mirrors.
func (n *NowPlaying) First() (Entry, bool) {
	if n == nil || len(n.Entries) == 0 {
		return Entry{}, false
	}
	return n.Entries[0], true
}

// EntryList accepts either a single entry object or a list of them. Elements
// that are not objects, or that fail to decode, are dropped.
type EntryList []Entry

func (l *EntryList) UnmarshalJSON(data []byte) error {
	*l = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '{':
		var e Entry
		if err := json.Unmarshal(data, &e); err == nil {
			*l = EntryList{e}
		}
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		for _, r := range raw {
			r = bytes.TrimSpace(r)
			if len(r) == 0 || r[0] != '{' {
				continue
			}
			var e Entry
			if err := json.Unmarshal(r, &e); err == nil {
				*l = append(*l, e)
			}
		}
	}
	return nil
}

// Entry is one now-playing child as reported by the server.
type Entry struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Name         string      `json:"name"`
	SortName     string      `json:"sortName"`
	Album        string      `json:"album"`
	AlbumID      string      `json:"albumId"`
	Artist       string      `json:"artist"`
	Artists      []ArtistRef `json:"artists"`
	AlbumArtists []ArtistRef `json:"albumArtists"`
	CoverArt     string      `json:"coverArt"`
	CoverID      string      `json:"coverId"`
	Duration     Number      `json:"duration"`
	Position     Number      `json:"position"`
	Elapsed      Number      `json:"elapsed"`
	MinutesAgo   Number      `json:"minutesAgo"`
	Username     string      `json:"username"`
	PlayerName   string      `json:"playerName"`
}

type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is the decoded "album" object of a getAlbum response.
type Album struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Artist       string     `json:"artist"`
	Version      string     `json:"version"`
	Comment      string     `json:"comment"`
	ReleaseTypes StringList `json:"releaseTypes"`
	ReleaseType  StringList `json:"releaseType"`
	AlbumType    StringList `json:"albumType"`
	SongCount    Number     `json:"songCount"`
}

// VersionComment returns the edition string of the album, or "" when the
// server has none.
func (a Album) VersionComment() string {
	for _, v := range []string{a.Version, a.Comment} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ReleaseInfo holds the facts used to decide whether a track is a single.
type ReleaseInfo struct {
	Types        []string
	SongCount    int
	HasSongCount bool
}

// IsSingle reports whether the release types name a single or, when no
// release types are known, whether the album holds exactly one song.
func (r ReleaseInfo) IsSingle() bool {
	if len(r.Types) > 0 {
		for _, t := range r.Types {
			if strings.EqualFold(strings.TrimSpace(t), "single") {
				return true
			}
		}
		return false
	}
	return r.HasSongCount && r.SongCount == 1
}

// ReleaseInfo extracts release types from the first populated alias field,
// falling back to the song count. ok is false when neither is present.
func (a Album) ReleaseInfo() (ReleaseInfo, bool) {
	for _, l := range []StringList{a.ReleaseTypes, a.ReleaseType, a.AlbumType} {
		if len(l) > 0 {
			return ReleaseInfo{Types: append([]string(nil), l...)}, true
		}
	}
	if n, ok := a.SongCount.Int(); ok {
		return ReleaseInfo{SongCount: n, HasSongCount: true}, true
	}
	return ReleaseInfo{}, false
}

// StringList decodes a JSON string into a single-element list and a JSON list
// into its stringified elements. Anything else decodes as empty.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	*l = nil
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			*l = StringList{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(StringList, 0, len(items))
	for _, it := range items {
		var str string
		if err := json.Unmarshal(it, &str); err == nil {
			out = append(out, str)
			continue
		}
		out = append(out, strings.TrimSpace(string(it)))
	}
	*l = out
	return nil
}

// Number is a lenient numeric field. Servers disagree on whether numbers are
// sent as JSON numbers or strings; a value that cannot be parsed is absent.
type Number struct {
	raw    string
	quoted bool
	set    bool
}

// IntNumber builds a present Number, mostly for tests and fixtures.
func IntNumber(v int) Number {
	return Number{raw: strconv.Itoa(v), set: true}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*n = Number{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			*n = Number{}
			return nil
		}
		*n = Number{raw: strings.TrimSpace(v), quoted: true, set: true}
		return nil
	}
	*n = Number{raw: s, set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	v, ok := n.Int()
	if !ok {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(v)), nil
}

// Present reports whether the field was sent with a non-null value.
func (n Number) Present() bool { return n.set }

// Int parses the value as an integer. JSON numbers with a fraction are
// truncated; quoted values must be plain integers.
func (n Number) Int() (int, bool) {
	if !n.set {
		return 0, false
	}
	if v, err := strconv.Atoi(n.raw); err == nil {
		return v, true
	}
	if n.quoted {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
