package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/soaringjerry/surveyhub/internal/services"
)

const (
	maxFieldBytes = 1 << 20
	maxFormBytes  = 10 << 20
)

// metaFields steer the request itself and are never treated as answers.
var metaFields = map[string]bool{"action": true, "lang": true}

// submissionForm is a survey form decoded in submission order. File parts are
// spooled to temp files; Close removes them.
type submissionForm struct {
	Fields []services.FormField
	Files  []services.UploadedFile
	Meta   map[string]string

	spooled []*os.File
}

func (f *submissionForm) Close() {
	for _, tmp := range f.spooled {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	f.spooled = nil
}

func (f *submissionForm) add(key, value string) {
	if metaFields[key] {
		f.Meta[key] = value
		return
	}
	f.Fields = append(f.Fields, services.FormField{Key: key, Value: value})
}

func parseSubmissionForm(r *http.Request, maxFileBytes int64) (*submissionForm, error) {
	form := &submissionForm{Meta: map[string]string{}}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return form, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, badRequest("malformed content type")
	}
	switch mediaType {
	case "multipart/form-data":
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, badRequest("malformed multipart body")
		}
		if err := form.readMultipart(mr, maxFileBytes); err != nil {
			form.Close()
			return nil, err
		}
	case "application/x-www-form-urlencoded":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read form: %w", err)
		}
		if len(body) > maxFormBytes {
			return nil, badRequest("form too large")
		}
		if err := form.readURLEncoded(string(body)); err != nil {
			return nil, err
		}
	default:
		return nil, badRequest("unsupported content type " + mediaType)
	}
	return form, nil
}

// readURLEncoded keeps pair order, which url.ParseQuery does not.
func (f *submissionForm) readURLEncoded(body string) error {
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return badRequest("malformed form key")
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return badRequest("malformed form value for " + key)
		}
		f.add(key, val)
	}
	return nil
}

func (f *submissionForm) readMultipart(mr *multipart.Reader, maxFileBytes int64) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return badRequest("malformed multipart body")
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if isFilePart(part) {
			if err := f.spool(name, part, maxFileBytes); err != nil {
				_ = part.Close()
				return err
			}
		} else {
			b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			if err != nil {
				_ = part.Close()
				return fmt.Errorf("read field %s: %w", name, err)
			}
			if len(b) > maxFieldBytes {
				_ = part.Close()
				return badRequest("field too large: " + name)
			}
			f.add(name, string(b))
		}
		_ = part.Close()
	}
}

// isFilePart is true for file inputs even when no file was chosen; browsers
// still send such parts with an empty filename.
func isFilePart(p *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

// spool copies at most maxFileBytes+1 bytes so oversize files can be rejected
// by size without buffering them whole.
func (f *submissionForm) spool(field string, part *multipart.Part, maxFileBytes int64) error {
	tmp, err := os.CreateTemp("", "survey-upload-*")
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	f.spooled = append(f.spooled, tmp)
	n, err := io.Copy(tmp, io.LimitReader(part, maxFileBytes+1))
	if err != nil {
		return fmt.Errorf("spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload: %w", err)
	}
	f.Files = append(f.Files, services.UploadedFile{
		Field:    field,
		Filename: part.FileName(),
		Size:     n,
		Content:  tmp,
	})
	return nil
}
