package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-qbank/internal/grading"
)

type gradeReq struct {
	From         string          `json:"from"`
	Source       string          `json:"source,omitempty"`
	SourceBase64 string          `json:"source_base64,omitempty"` // binary dialects (qti)
	QuestionID   string          `json:"question_id"`
	Response     json.RawMessage `json:"response"`
}

// decodeResponse keeps strings, numbers and lists as decoded by encoding/json;
// an object is read as rubric marks.
func decodeResponse(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '{' {
		var m grading.Marks
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// POST /grade
// body: {"from":"moodle","source":"<quiz>...</quiz>","question_id":"q1","response":"Paris"}
func GradeHandler(d Deps, g grading.Grader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.MaxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, d.MaxUpload)
		}
		var req gradeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		from, err := adapter(req.From)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		src := []byte(req.Source)
		if req.SourceBase64 != "" {
			if src, err = base64.StdEncoding.DecodeString(req.SourceBase64); err != nil {
				http.Error(w, "bad source_base64: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		resp, err := decodeResponse(req.Response)
		if err != nil {
			http.Error(w, "bad response: "+err.Error(), http.StatusBadRequest)
			return
		}
		opt, err := d.options(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, err := from.Import(r.Context(), bytes.NewReader(src), opt)
		if err != nil {
			writeError(w, "import", err)
			return
		}
		q, ok := b.Find(strings.TrimSpace(req.QuestionID))
		if !ok {
			http.Error(w, "question not found", http.StatusNotFound)
			return
		}
		res, err := g.Grade(r.Context(), q, resp)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, grading.ErrResponse) {
				status = http.StatusBadRequest
			}
			http.Error(w, "grade: "+err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
