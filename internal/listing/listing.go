// Package listing reads the raw project records produced by the listing
// fetcher. Fetching and HTML parsing happen outside of this module; a run only
// consumes the fetcher's JSON dump.
package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// RawRecord is a project exactly as the fetcher reported it.
type RawRecord struct {
	Title       string `mapstructure:"title" json:"title"`
	Link        string `mapstructure:"link" json:"link"`
	Company     string `mapstructure:"company" json:"company"`
	Description string `mapstructure:"description" json:"description"`
	// Keywords is comma-joined. Lists in the dump are joined while decoding.
	Keywords    string `mapstructure:"keywords" json:"keywords"`
	Created     string `mapstructure:"created" json:"created"`
	TopProject  bool   `mapstructure:"top_project" json:"top_project"`
	EndCustomer bool   `mapstructure:"end_customer" json:"end_customer"`
}

// Session holds the settings of a single fetch run. It is created per run and
// passed by pointer; nothing about a run is kept in package state.
type Session struct {
	// Source labels where the records came from, used for logging only.
	Source string
	// MaxRecords caps the number of records handed out. Zero means no limit.
	MaxRecords int
	// Fetched is filled in by the fetcher.
	Fetched int
	// Skipped counts dump entries that could not be decoded.
	Skipped int
}

// Fetcher produces raw records for one run.
type Fetcher interface {
	Fetch(ctx context.Context, session *Session) ([]RawRecord, error)
}

// FileFetcher reads a JSON array dump written by the listing fetcher.
type FileFetcher struct {
	Path   string
	logger *zap.Logger
}

func NewFileFetcher(path string, logger *zap.Logger) *FileFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileFetcher{Path: strings.TrimSpace(path), logger: logger}
}

func (f *FileFetcher) Fetch(ctx context.Context, session *Session) ([]RawRecord, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("listing file is not configured")
	}
	if session == nil {
		session = &Session{}
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open listing file: %w", err)
	}
	defer file.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := decode(file, session, f.logger)
	if err != nil {
		return nil, fmt.Errorf("decode listing file %q: %w", f.Path, err)
	}

	f.logger.Debug("listing file read",
		zap.String("path", f.Path),
		zap.String("source", session.Source),
		zap.Int("records", session.Fetched),
		zap.Int("skipped", session.Skipped),
	)

	return records, nil
}

// decode reads a JSON array of raw records from r.
func decode(r io.Reader, session *Session, logger *zap.Logger) ([]RawRecord, error) {
	var items []map[string]any
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, err
	}

	records := make([]RawRecord, 0, len(items))
	for idx, item := range items {
		if session.MaxRecords > 0 && len(records) >= session.MaxRecords {
			break
		}

		var record RawRecord
		if err := decodeItem(item, &record); err != nil {
			session.Skipped++
			logger.Warn("skipping undecodable listing entry", zap.Int("index", idx), zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	session.Fetched = len(records)
	return records, nil
}

func decodeItem(item map[string]any, record *RawRecord) error {
	cfg := &mapstructure.DecoderConfig{
		DecodeHook:       joinSliceHook,
		WeaklyTypedInput: true,
		Result:           record,
		TagName:          "mapstructure",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	return decoder.Decode(item)
}

// joinSliceHook lets the dump carry keywords either as a string or a list.
func joinSliceHook(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	if from != reflect.Slice || to != reflect.String {
		return data, nil
	}

	values, ok := data.([]any)
	if !ok {
		return data, nil
	}

	parts := make([]string, 0, len(values))
	for _, v := range values {
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", "), nil
}
