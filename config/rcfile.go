package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// RCDefaults holds process-wide defaults read from a tailnmailrc file.
// Only a subset of the config keywords is honored there; other keys are
// kept in Keys but Apply ignores them. Apply runs after the config file is
// parsed and fills only keywords the config file did not set.
type RCDefaults struct {
	Keys map[string]string
}

// rcLocations lists the rc files probed in order; the first one that
// exists wins.
func rcLocations() []string {
	locs := []string{".tailnmailrc"}
	if home, err := os.UserHomeDir(); err == nil {
		locs = append(locs, filepath.Join(home, ".tailnmailrc"))
	}
	locs = append(locs, "/etc/tailnmailrc")
	return locs
}

// LoadRC reads the first tailnmailrc found. Returns ErrDisabled when the
// file carries "disable: 1", which callers treat as an immediate silent
// exit. A missing rc file is not an error.
func LoadRC() (*RCDefaults, error) {
	for _, loc := range rcLocations() {
		fi, err := os.Stat(loc)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		return parseRC(loc)
	}
	return &RCDefaults{Keys: map[string]string{}}, nil
}

func parseRC(path string) (*RCDefaults, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rc := &RCDefaults{Keys: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := keywordRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToUpper(m[1])
		value := unquote(m[3])
		if key == "DISABLE" && value == "1" {
			return nil, ErrDisabled
		}
		if _, dup := rc.Keys[key]; !dup {
			rc.Keys[key] = value
		}
	}
	return rc, scanner.Err()
}

// Apply folds rc defaults into a freshly parsed config. Values given in
// the config file itself win; rc values fill only what the config left at
// its default.
func (rc *RCDefaults) Apply(c *Config) {
	for key, value := range rc.Keys {
		if c.wasSet(key) {
			continue
		}
		switch key {
		case "EMAIL":
			c.Emails = append(c.Emails, value)
		case "FROM":
			c.From = value
		case "MAILMODE":
			if value == "sendmail" || value == "smtp" {
				c.MailMode = value
			}
		case "SENDMAIL":
			c.Sendmail = value
		case "MAILSERVER":
			c.MailServer = value
		case "MAILPORT":
			c.MailPort = parseInt(value, "tailnmailrc", key)
		case "MAILUSER":
			c.MailUser = value
		case "MAILPASS":
			c.MailPass = value
		case "MAILSIG":
			c.MailSig = value
		case "LOG_LINE_PREFIX":
			c.LogLinePrefix = value
		case "TIMEWARP":
			c.Timewarp = parseInt(value, "tailnmailrc", key)
		}
	}
}
