// Package cmd implements the command-line interface for tailnmail.
package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Alain-L/tailnmail/analysis"
	"github.com/Alain-L/tailnmail/config"
	"github.com/Alain-L/tailnmail/output"
	"github.com/Alain-L/tailnmail/parser"
)

// executeRun is the whole pipeline for one invocation:
//  1. rc file and config load, flag overrides
//  2. per entry: resolve files, read, assemble, filter, aggregate
//  3. render the report and hand it to the mail transport
//  4. persist offsets, but only once the mail step cannot fail anymore
func executeRun(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	rc, err := config.LoadRC()
	if err != nil {
		if errors.Is(err, config.ErrDisabled) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	rc.Apply(cfg)
	applyOverrides(cfg)

	if len(cfg.Emails) == 0 && !dryrunFlag && !nomailFlag && !resetFlag {
		return errors.Errorf("config %s names no EMAIL recipients", cfg.Path)
	}

	if resetFlag {
		return resetOffsets(cfg)
	}

	ps, err := parser.CompilePrefix(cfg.LogLinePrefix, cfg.Syslog)
	if err != nil {
		return err
	}
	fs, err := parser.CompileFilters(cfg.Include, cfg.Exclude, cfg.ExcludePrefix, cfg.ExcludeNonParsed)
	if err != nil {
		return err
	}

	agg := analysis.NewAggregator(cfg.Type, cfg.SortBy)
	for _, e := range cfg.Files {
		if err := processEntry(cfg, e, ps, fs, agg); err != nil {
			return err
		}
	}

	if err := mailReport(cfg, agg); err != nil {
		// Offsets have not been rewritten yet: the next run re-processes
		// the same data, preserving at-least-once report delivery.
		return err
	}

	if !dryrunFlag {
		if cfg.CommitRun() {
			if err := cfg.Rewrite(); err != nil {
				return err
			}
		}
	}

	if verboseFlag {
		output.PrintRunSummary(cfg.Files, agg.Matches(), time.Since(startTime))
	}
	return nil
}

// processEntry reads every file the resolver yields for one entry,
// assembling, filtering and aggregating its records. Missing files are
// per-file recoverable: warn and move on.
func processEntry(cfg *config.Config, e *config.FileEntry, ps *parser.PrefixSet, fs *parser.FilterSet, agg *analysis.Aggregator) error {
	res, err := parser.NewResolver(e, cfg.Timewarp, nil)
	if err != nil {
		if !quietFlag {
			log.Printf("[WARN] %v", err)
		}
		return nil
	}

	emit := func(rec *parser.Record) {
		body, ok := fs.Admit(rec, cfg.Type, cfg.DurationMin, cfg.TempfileMin)
		if !ok {
			return
		}
		e.Matches++
		agg.Add(rec, body)
	}
	asm := parser.NewAssembler(ps, cfg.SQLState, cfg.SkipNonParsed, emit)

	for {
		path, ok := res.Next()
		if !ok {
			break
		}

		opts := parser.ReadOptions{
			MaxSize:     cfg.MaxSize,
			Rewind:      rewindFlag,
			FindLineNum: cfg.FindLineNum,
		}
		// The stored offset belongs to the last-scanned file; every
		// newer file starts from the top.
		if path == e.LastPath {
			opts.Offset = e.Offset
			if offsetFlag >= 0 {
				opts.Offset = offsetFlag
				opts.OffsetOverride = true
			}
		}

		var rres parser.ReadResult
		var rerr error
		if cfg.CSV {
			rres, rerr = parser.ReadCSV(path, opts, emit)
		} else {
			asm.StartFile(path)
			rres, rerr = parser.ReadLines(path, opts, asm.Line)
			asm.Flush()
		}
		if rerr != nil {
			if errors.Is(rerr, parser.ErrMissingFile) {
				if !quietFlag {
					log.Printf("[WARN] %v", rerr)
				}
				continue
			}
			return rerr
		}

		e.LatestPath = path
		e.NewOffset = rres.NewOffset
		e.BytesRead += rres.BytesRead
		if rres.Note != "" {
			e.Note = rres.Note
		}
	}
	return nil
}

// mailReport renders, chunks, stages and sends the report. With zero
// clusters nothing is sent unless MAILZERO asks for the short "all
// quiet" mail, which is never chunked.
func mailReport(cfg *config.Config, agg *analysis.Aggregator) error {
	clusters := agg.Clusters()
	if len(clusters) == 0 && !cfg.MailZero {
		return nil
	}
	if nomailFlag {
		return nil
	}

	body := output.Render(cfg, clusters, agg.Matches(), time.Now())
	chunks := []string{body}
	if len(clusters) > 0 {
		chunks = output.Chunk(body, cfg.MaxEmailSize)
	}

	hostname, _ := os.Hostname()
	subject := output.Subject(cfg, hostname, len(clusters), agg.Matches())
	mailer := buildMailer(cfg)

	for i, chunk := range chunks {
		sub := subject
		if len(chunks) > 1 {
			sub = fmt.Sprintf("%s (part %d of %d)", subject, i+1, len(chunks))
		}
		if err := sendChunk(mailer, cfg, sub, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk stages one chunk in a temp file, hands it to the transport,
// and removes the staging file on every path.
func sendChunk(mailer output.Mailer, cfg *config.Config, subject, chunk string) error {
	tmp, err := os.CreateTemp("", "tailnmail-*.txt")
	if err != nil {
		return errors.Wrap(err, "staging mail body")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(chunk); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing mail body")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing mail body")
	}

	return mailer.Send(cfg.From, cfg.Emails, subject, tmpName)
}

// buildMailer picks the transport: stdout for dry runs, otherwise what
// MAILMODE selects.
func buildMailer(cfg *config.Config) output.Mailer {
	if dryrunFlag {
		return &output.StdoutMailer{}
	}
	if cfg.MailMode == "smtp" {
		return &output.SMTPMailer{
			Host:     cfg.MailServer,
			Port:     cfg.MailPort,
			User:     cfg.MailUser,
			Password: cfg.MailPass,
		}
	}
	return &output.SendmailMailer{Path: cfg.Sendmail}
}

// resetOffsets skips all content: every entry's offset jumps to the
// current end of its resolved file and the config is rewritten, even on
// a dry run (--reset is an explicit request).
func resetOffsets(cfg *config.Config) error {
	for _, e := range cfg.Files {
		res, err := parser.NewResolver(e, cfg.Timewarp, nil)
		if err != nil {
			if !quietFlag {
				log.Printf("[WARN] %v", err)
			}
			continue
		}
		for {
			path, ok := res.Next()
			if !ok {
				break
			}
			fi, err := os.Stat(path)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			e.LatestPath = path
			e.NewOffset = fi.Size()
		}
	}
	cfg.CommitRun()
	return cfg.Rewrite()
}

// applyOverrides folds command-line flags into the loaded config.
func applyOverrides(cfg *config.Config) {
	if len(fileFlag) > 0 {
		// Replacement entries are flagged inherited so the rewrite never
		// records offsets for files the config does not own.
		cfg.Files = nil
		for _, f := range fileFlag {
			cfg.Files = append(cfg.Files, &config.FileEntry{Template: f, Inherited: true})
		}
	}
	if durationFlag >= 0 {
		cfg.Type = config.TypeDuration
		cfg.DurationMin = durationFlag
	}
	if tempfileFlag >= 0 {
		cfg.Type = config.TypeTempfile
		cfg.TempfileMin = tempfileFlag
	}
	if timewarpFlag != 0 {
		cfg.Timewarp = timewarpFlag
	}
	if mailzeroFlag {
		cfg.MailZero = true
	}
	if mailmodeFlag != "" {
		cfg.MailMode = mailmodeFlag
	}
	if sendmailFlag != "" {
		cfg.Sendmail = sendmailFlag
	}
	cfg.Include = append(cfg.Include, includeFlag...)
	cfg.Exclude = append(cfg.Exclude, excludeFlag...)
}
