package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// File is a raw attachment part within a multipart request.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Form describes a multipart payload: scalar and nested fields plus file
// parts. Nested maps and slices are flattened into bracketed keys the way
// the platform expects (items[0][name]); dates collapse to YYYY-MM-DD.
type Form struct {
	Fields map[string]any
	Files  []File
}

func (f Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeField(w, k, f.Fields[k]); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.Files {
		part, err := w.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, "", fmt.Errorf("api: create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("api: copy file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeField(w *multipart.Writer, key string, value any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := writeField(w, fmt.Sprintf("%s[%s]", key, k), v[k]); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for i, item := range v {
			if err := writeField(w, fmt.Sprintf("%s[%d]", key, i), item); err != nil {
				return err
			}
		}
		return nil
	case time.Time:
		return w.WriteField(key, v.Format("2006-01-02"))
	case decimal.Decimal:
		return w.WriteField(key, v.String())
	case string:
		return w.WriteField(key, v)
	case bool:
		if v {
			return w.WriteField(key, "1")
		}
		return w.WriteField(key, "0")
	default:
		return w.WriteField(key, fmt.Sprint(v))
	}
}
