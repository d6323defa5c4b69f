package units

import (
	"context"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"shardwork/internal/errors"
	"shardwork/internal/progress"
	"shardwork/internal/storage"
)

// CharLengthKind names the character length tagger
const CharLengthKind = "char_length"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CharLength tags every document with its length in characters.
//
// Input is JSON lines; each output line is
//
//	{"id": <id>, "attributes": {"<prefix>__char_length": [[0, n, n]]}}
//
// where the span covers the whole text and the id is copied verbatim from the
// document, so large integer ids survive. Kwargs: text_field (default "text"),
// id_field (default "id"), attribute_prefix (default "char_length").
type CharLength struct {
	fs     storage.FileSystem
	logger *zap.Logger
}

// NewCharLength creates a character length tagger
func NewCharLength(fs storage.FileSystem, logger *zap.Logger) *CharLength {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CharLength{fs: fs, logger: logger}
}

func (c *CharLength) Kind() string { return CharLengthKind }

func (c *CharLength) Counters() []string { return []string{"documents", "characters"} }

var jsonNull = jsoniter.RawMessage("null")

type attributeRecord struct {
	ID         jsoniter.RawMessage `json:"id"`
	Attributes map[string][][3]int `json:"attributes"`
}

func (c *CharLength) Process(ctx context.Context, src, dst string, kwargs map[string]any, rep progress.Reporter) error {
	textField, err := stringArg(kwargs, "text_field", "text")
	if err != nil {
		return err
	}
	idField, err := stringArg(kwargs, "id_field", "id")
	if err != nil {
		return err
	}
	prefix, err := stringArg(kwargs, "attribute_prefix", CharLengthKind)
	if err != nil {
		return err
	}
	attr := prefix + "__char_length"

	r, err := openDocuments(ctx, c.fs, src)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := createDocuments(ctx, c.fs, dst)
	if err != nil {
		return err
	}

	var docs, chars int64
	flush := func() error {
		if docs == 0 {
			return nil
		}
		err := rep.Increment(map[string]int64{"documents": docs, "characters": chars})
		docs, chars = 0, 0
		return err
	}

	lineNo := 0
	err = eachLine(ctx, r, func(line []byte) error {
		lineNo++
		var doc map[string]jsoniter.RawMessage
		if err := json.Unmarshal(line, &doc); err != nil {
			return errors.Wrapf(err, "line %d: invalid JSON", lineNo)
		}

		var text string
		raw, ok := doc[textField]
		if !ok || string(raw) == "null" || json.Unmarshal(raw, &text) != nil {
			return errors.Newf("line %d: field %q is missing or not a string", lineNo, textField)
		}
		n := utf8.RuneCountInString(text)

		id, ok := doc[idField]
		if !ok {
			id = jsonNull
		}
		out, err := json.Marshal(attributeRecord{
			ID:         id,
			Attributes: map[string][][3]int{attr: {{0, n, n}}},
		})
		if err != nil {
			return err
		}
		if _, err := w.Write(append(out, '\n')); err != nil {
			return err
		}

		docs++
		chars += int64(n)
		if docs >= reportEvery {
			return flush()
		}
		return nil
	})
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "tagging %s", src)
	}

	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "finishing %s", dst)
	}

	c.logger.Debug("Tagged file",
		zap.String("source", src),
		zap.String("destination", dst),
		zap.String("attribute", attr))
	return flush()
}
