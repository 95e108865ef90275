package config

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// item is one keyword line of the config file plus the comment block that
// immediately preceded it. Items are kept in file order so the rewrite can
// re-emit comments in front of the line they were attached to.
type item struct {
	comments []string
	key      string
	value    string
	entry    *FileEntry // set for FILE/LASTFILE/OFFSET lines
}

// keywordRE splits "KEY[N]: value" lines. The numeric suffix is written
// without brackets (FILE1, LASTFILE1, OFFSET1).
var keywordRE = regexp.MustCompile(`^([A-Za-z_]+?)(\d*)\s*:\s*(.*)$`)

// Repeatable keywords may appear any number of times. Every other
// keyword takes its first occurrence: a later line for the same keyword
// is ignored with a warning, whether or not its value differs.
var repeatable = map[string]bool{
	"EMAIL":              true,
	"INCLUDE":            true,
	"EXCLUDE":            true,
	"EXCLUDE_PREFIX":     true,
	"EXCLUDE_NON_PARSED": true,
	"INHERIT":            true,
	"FILE":               true,
	"LASTFILE":           true,
	"OFFSET":             true,
}

// Load reads and parses the config file at path, resolving INHERIT
// references. Fatal misconfigurations (unreadable file, duplicate suffix)
// are returned as errors before any log I/O happens.
func Load(path string) (*Config, error) {
	cfg := NewConfig(path)
	if err := cfg.parseInto(path, false); err != nil {
		return nil, err
	}
	if len(cfg.Files) == 0 {
		return nil, errors.Errorf("config %s names no FILE entries", path)
	}
	return cfg, nil
}

// parseInto parses one config file into cfg. When inherited is true the
// lines come from an INHERIT target: entries are flagged and no items are
// recorded, so the inherited file is never rewritten.
func (c *Config) parseInto(path string, inherited bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "cannot open config %s", path)
	}
	defer f.Close()

	var comments []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			comments = append(comments, line)
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			comments = append(comments, line)
			continue
		}

		m := keywordRE.FindStringSubmatch(trimmed)
		if m == nil {
			log.Printf("[WARN] %s: unparseable line ignored: %q", path, trimmed)
			continue
		}
		key := strings.ToUpper(m[1])
		suffix := 0
		if m[2] != "" {
			suffix, _ = strconv.Atoi(m[2])
		}
		value := unquote(m[3])

		normalized := key + m[2] + ":" + value
		if c.seen[normalized] {
			log.Printf("[WARN] %s: duplicate line ignored: %q", path, trimmed)
			continue
		}
		c.seen[normalized] = true

		if !repeatable[key] && c.setKeys[key] {
			log.Printf("[WARN] %s: duplicate %s ignored: %q", path, key, trimmed)
			continue
		}

		it := &item{comments: comments, key: key, value: value}
		comments = nil
		c.setKeys[key] = true

		if err := c.applyKeyword(it, key, suffix, value, path, inherited); err != nil {
			return err
		}
		if !inherited {
			c.items = append(c.items, it)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	if !inherited {
		c.trailing = append(c.trailing, comments...)
	}
	return nil
}

// applyKeyword folds one parsed line into the typed configuration.
func (c *Config) applyKeyword(it *item, key string, suffix int, value, path string, inherited bool) error {
	switch key {
	case "FILE":
		e := &FileEntry{Suffix: suffix, Template: value, Inherited: inherited}
		if err := c.addEntry(e); err != nil {
			return errors.Wrapf(err, "config %s", path)
		}
		it.entry = e
	case "LASTFILE":
		e := c.Entry(suffix)
		if e == nil {
			log.Printf("[WARN] %s: LASTFILE%d has no matching FILE%d", path, suffix, suffix)
			return nil
		}
		e.LastPath = value
		it.entry = e
	case "OFFSET":
		e := c.Entry(suffix)
		if e == nil {
			log.Printf("[WARN] %s: OFFSET%d has no matching FILE%d", path, suffix, suffix)
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n < 0 {
			log.Printf("[WARN] %s: invalid OFFSET%d value %q", path, suffix, value)
			return nil
		}
		e.Offset = n
		it.entry = e
	case "EMAIL":
		c.Emails = append(c.Emails, value)
	case "FROM":
		c.From = value
	case "TYPE":
		switch value {
		case TypeNormal, TypeDuration, TypeTempfile:
			c.Type = value
		default:
			return errors.Errorf("config %s: unknown TYPE %q", path, value)
		}
	case "DURATION":
		c.DurationMin = parseFloat(value, path, key)
	case "DURATION_LIMIT":
		c.DurationLimit = parseInt(value, path, key)
	case "TEMPFILE":
		c.TempfileMin = int64(parseFloat(value, path, key))
	case "TEMPFILE_LIMIT":
		c.TempfileLimit = parseInt(value, path, key)
	case "LOG_LINE_PREFIX":
		c.LogLinePrefix = value
	case "SORTBY":
		c.SortBy = value
	case "FIND_LINE_NUMBER":
		c.FindLineNum = value == "1"
	case "SYSLOG":
		c.Syslog = value == "1"
	case "CSV":
		c.CSV = value == "1"
	case "SQLSTATE":
		c.SQLState = value == "1"
	case "SKIP_NON_PARSED":
		c.SkipNonParsed = value == "1"
	case "INCLUDE":
		c.Include = append(c.Include, value)
	case "EXCLUDE":
		c.Exclude = append(c.Exclude, value)
	case "EXCLUDE_PREFIX":
		c.ExcludePrefix = append(c.ExcludePrefix, value)
	case "EXCLUDE_NON_PARSED":
		c.ExcludeNonParsed = append(c.ExcludeNonParsed, value)
	case "MAXSIZE":
		c.MaxSize = int64(parseInt(value, path, key))
	case "MAXEMAILSIZE":
		c.MaxEmailSize = int64(parseInt(value, path, key))
	case "STATEMENT_SIZE":
		c.StatementSize = parseInt(value, path, key)
	case "MAILSUBJECT":
		c.MailSubject = value
	case "MAILZERO":
		c.MailZero = value == "1"
	case "MAILSIG":
		c.MailSig = value
	case "TIMEWARP":
		c.Timewarp = parseInt(value, path, key)
	case "MAILMODE":
		if value != "sendmail" && value != "smtp" {
			return errors.Errorf("config %s: unknown MAILMODE %q", path, value)
		}
		c.MailMode = value
	case "SENDMAIL":
		c.Sendmail = value
	case "MAILSERVER":
		c.MailServer = value
	case "MAILPORT":
		c.MailPort = parseInt(value, path, key)
	case "MAILUSER":
		c.MailUser = value
	case "MAILPASS":
		c.MailPass = value
	case "INHERIT":
		target, err := findInherit(value, c.Path)
		if err != nil {
			return errors.Wrapf(err, "config %s", path)
		}
		if err := c.parseInto(target, true); err != nil {
			return err
		}
	default:
		log.Printf("[WARN] %s: unknown keyword %q ignored", path, key)
	}
	return nil
}

// findInherit locates an INHERIT target by name. The search path is:
// current directory, ./tnm/, the binary's directory, binary dir + /tnm/,
// the config file's directory, and $HOME/tnm/.
func findInherit(name, confPath string) (string, error) {
	var dirs []string
	dirs = append(dirs, ".", "tnm")
	if exe, err := os.Executable(); err == nil {
		bindir := filepath.Dir(exe)
		dirs = append(dirs, bindir, filepath.Join(bindir, "tnm"))
	}
	dirs = append(dirs, filepath.Dir(confPath))
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "tnm"))
	}

	for _, d := range dirs {
		candidate := filepath.Join(d, name)
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", errors.Errorf("INHERIT file %q not found", name)
}

// unquote strips a single level of surrounding double quotes, preserving
// any whitespace inside them. Unquoted values are trimmed.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

func parseInt(value, path, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("[WARN] %s: invalid %s value %q", path, key, value)
		return 0
	}
	return n
}

func parseFloat(value, path, key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Printf("[WARN] %s: invalid %s value %q", path, key, value)
		return 0
	}
	return f
}
