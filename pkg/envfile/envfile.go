// Package envfile edits KEY=VALUE environment files such as /etc/environment
// in place. Lines that are not touched by Put or Remove are written back
// byte for byte.
package envfile

import (
	"bytes"
	"os"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
)

type entry struct {
	value string
	line  int
	quote string
}

// EnvFile is a parsed environment file
type EnvFile struct {
	path    string
	lines   []string
	entries map[string]*entry
	perm    os.FileMode
}

// Open loads path. A missing file yields an empty document which is created
// by Save.
func Open(path string) (*EnvFile, error) {
	f := &EnvFile{
		path:    path,
		entries: make(map[string]*entry),
		perm:    0644,
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if fi, err := os.Stat(path); err == nil {
		f.perm = fi.Mode().Perm()
	}
	f.parse(string(content))
	return f, nil
}

// Parse builds a document from content, it is not bound to any path
func Parse(content string) *EnvFile {
	f := &EnvFile{entries: make(map[string]*entry), perm: 0644}
	f.parse(content)
	return f
}

func (f *EnvFile) parse(content string) {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return
	}
	f.lines = strings.Split(content, "\n")
	for i, l := range f.lines {
		key, value, quote, ok := parseLine(l)
		if !ok {
			continue
		}
		// last one wins
		f.entries[key] = &entry{value: value, line: i, quote: quote}
	}
}

// parseLine recognizes "KEY=VALUE", "export KEY=VALUE" and quoted values
func parseLine(l string) (key, value, quote string, ok bool) {
	s := strings.TrimLeft(l, " \t")
	if s == "" || s[0] == '#' {
		return
	}
	s = strings.TrimPrefix(s, "export ")
	key, value, ok = strings.Cut(s, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", "", false
	}
	value = strings.TrimRight(value, " \t\r")
	if len(value) >= 2 {
		if q := value[:1]; (q == `"` || q == "'") && strings.HasSuffix(value, q) {
			return key, value[1 : len(value)-1], q, true
		}
	}
	return key, value, "", true
}

// Get returns the value of key
func (f *EnvFile) Get(key string) (string, bool) {
	e, ok := f.entries[key]
	if !ok {
		return "", false
	}
	return e.value, true
}

// ErrInvalidEntry is returned by Put for a key or value that can not be
// stored on a single line
var ErrInvalidEntry = errors.New("envfile: invalid entry")

// Put sets key to value. An existing line is rewritten in place keeping its
// quote style, otherwise a new line is appended.
func (f *EnvFile) Put(key, value string) error {
	if key == "" || strings.ContainsAny(key, "=# \t\r\n") {
		return errors.Wrapf(ErrInvalidEntry, "key %q", key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return errors.Wrapf(ErrInvalidEntry, "value of %s has a line break", key)
	}
	if e, ok := f.entries[key]; ok {
		e.value = value
		f.lines[e.line] = formatLine(f.lines[e.line], key, value, e.quote)
		return nil
	}
	f.lines = append(f.lines, key+"="+value)
	f.entries[key] = &entry{value: value, line: len(f.lines) - 1}
	return nil
}

func formatLine(old, key, value, quote string) string {
	prefix := ""
	if strings.HasPrefix(strings.TrimLeft(old, " \t"), "export ") {
		prefix = "export "
	}
	return prefix + key + "=" + quote + value + quote
}

// Remove deletes every line defining key
func (f *EnvFile) Remove(key string) {
	if _, ok := f.entries[key]; !ok {
		return
	}
	lines := f.lines[:0]
	for _, l := range f.lines {
		if k, _, _, ok := parseLine(l); ok && k == key {
			continue
		}
		lines = append(lines, l)
	}
	f.lines = lines
	delete(f.entries, key)
	for i, l := range f.lines {
		if k, _, _, ok := parseLine(l); ok {
			if e, exists := f.entries[k]; exists {
				e.line = i
			}
		}
	}
}

// Lines returns the raw lines of the document
func (f *EnvFile) Lines() []string {
	return append([]string(nil), f.lines...)
}

// Bytes serializes the document, every line is terminated with a newline
func (f *EnvFile) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range f.lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Save writes the document back atomically
func (f *EnvFile) Save() error {
	if f.path == "" {
		return errors.New("envfile: document is not bound to a path")
	}
	return errors.Wrapf(atomicwriter.WriteFile(f.path, f.Bytes(), f.perm), "save %s", f.path)
}
