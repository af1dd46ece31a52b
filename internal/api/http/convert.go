package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	auth "github.com/mind-engage/mindengage-qbank/internal/auth/middleware"
	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

// Deps are the collaborators shared by the bank handlers.
type Deps struct {
	Attachments richtext.Attachments // fills files referenced by path on import
	// NewMath returns the math renderer for one conversion run; nil
	// disables math images.
	NewMath   func() richtext.MathRenderer
	Strict    bool
	MaxUpload int64
}

func (d Deps) options(r *http.Request) (formats.Options, error) {
	q := r.URL.Query()
	opt := formats.Options{Strict: d.Strict, Attachments: d.Attachments}
	if d.NewMath != nil {
		opt.Math = d.NewMath()
	}
	if s := q.Get("strict"); s != "" {
		opt.Strict, _ = strconv.ParseBool(s)
	}
	if s := q.Get("embed"); s != "" {
		opt.Embed, _ = strconv.ParseBool(s)
	}
	mode, err := richtext.ParseMathMode(q.Get("math"))
	if err != nil {
		return opt, err
	}
	opt.MathMode = mode
	return opt, nil
}

// readUpload returns the request body, or the "file" part of a multipart
// form.
func (d Deps) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if d.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.MaxUpload)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("file required: %w", err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(r.Body)
}

func adapter(name string) (formats.Adapter, error) {
	a, ok := formats.Lookup(strings.ToLower(name))
	if !ok {
		return nil, fmt.Errorf("unknown format %q (have %s)", name, strings.Join(formats.Names(), ", "))
	}
	return a, nil
}

// POST /convert?from=moodle&to=qti[&embed=true&math=image&strict=true]
// body: the source bank (raw or multipart file=...)
func ConvertHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := adapter(q.Get("from"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		to, err := adapter(q.Get("to"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opt, err := d.options(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		src, err := d.readUpload(w, r)
		if err != nil {
			writeError(w, "upload", err)
			return
		}

		b, err := from.Import(r.Context(), bytes.NewReader(src), opt)
		if err != nil {
			writeError(w, "import", err)
			return
		}
		var out bytes.Buffer
		if err := to.Export(r.Context(), &out, b, opt); err != nil {
			writeError(w, "export", err)
			return
		}
		sub, role := auth.Principal(r.Context())
		log.Info().Str("sub", sub).Str("role", role).
			Str("from", q.Get("from")).Str("to", q.Get("to")).
			Int("questions", len(b.Questions)).Int("bytes", out.Len()).
			Msg("converted bank")
		name := q.Get("name")
		if name == "" {
			name = "bank"
		}
		w.Header().Set("Content-Type", to.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+extension(q.Get("to"))))
		w.Header().Set("X-Question-Count", strconv.Itoa(len(b.Questions)))
		_, _ = w.Write(out.Bytes())
	}
}

// POST /render?from=moodle&dialect=html
// Renders each question's text in a single text dialect, for previews.
func RenderHandler(d Deps) http.HandlerFunc {
	type item struct {
		ID   string    `json:"id"`
		Name string    `json:"name"`
		Type bank.Type `json:"type"`
		Text string    `json:"text"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := adapter(q.Get("from"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		dialect, err := richtext.ParseDialect(q.Get("dialect"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		opt, err := d.options(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		src, err := d.readUpload(w, r)
		if err != nil {
			writeError(w, "upload", err)
			return
		}
		b, err := from.Import(r.Context(), bytes.NewReader(src), opt)
		if err != nil {
			writeError(w, "import", err)
			return
		}
		ro := opt.RenderOptions(r.Context(), b)
		out := make([]item, 0, len(b.Questions))
		for _, qn := range b.Questions {
			text, err := qn.Text.Get(dialect, ro...)
			if err != nil {
				writeError(w, "render "+qn.ID, err)
				return
			}
			out = append(out, item{ID: qn.ID, Name: qn.Name, Type: qn.Type, Text: text})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /formats
func FormatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"formats": formats.Names()})
	}
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case "qti":
		return ".zip"
	case "moodle":
		return ".xml"
	}
	return ".txt"
}

// writeError maps conversion errors to status codes: malformed input is
// 400, well-formed input that cannot be represented is 422.
func writeError(w http.ResponseWriter, stage string, err error) {
	var pe *richtext.ParseError
	var fe *richtext.FormatError
	status := http.StatusBadRequest
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &fe), errors.Is(err, bank.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		status = http.StatusBadRequest
	case errors.As(err, &mbe):
		status = http.StatusRequestEntityTooLarge
	case stage == "export":
		status = http.StatusInternalServerError
	}
	http.Error(w, stage+": "+err.Error(), status)
}
