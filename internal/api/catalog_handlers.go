package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/soaringjerry/surveyhub/internal/models"
	"github.com/soaringjerry/surveyhub/internal/services"
)

const maxImportBytes = 5 << 20

func (rt *Router) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Catalog.ListSurveys(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (rt *Router) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req surveyRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	sv, err := rt.Catalog.CreateSurvey(r.Context(), actor(r), req.Name, req.Description)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

func (rt *Router) handleSurveyDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.Catalog.SurveyDetail(r.Context(), pathID(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) handleSetSurveyStatus(w http.ResponseWriter, r *http.Request) {
	var req surveyStatusRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	id := pathID(r, "id")
	if err := rt.Catalog.SetSurveyStatus(r.Context(), actor(r), id, req.Status); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func (rt *Router) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	q, err := rt.Catalog.AddQuestion(r.Context(), actor(r), req.model(pathID(r, "id")))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (rt *Router) handleAddOption(w http.ResponseWriter, r *http.Request) {
	var req optionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	o, err := rt.Catalog.AddOption(r.Context(), actor(r), req.model(pathID(r, "id")))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (rt *Router) handleExportQuestions(w http.ResponseWriter, r *http.Request) {
	if !actor(r).IsAdmin() {
		rt.writeError(w, r, services.NewForbiddenError("forbidden"))
		return
	}
	id := pathID(r, "id")
	data, err := rt.Catalog.ExportQuestionsCSV(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeFile(w, &services.ExportResult{
		Filename:    fmt.Sprintf("survey_%d_questions.csv", id),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	})
}

// handleImportQuestions accepts the CSV either as the raw body or as the
// "file" part of a multipart upload.
func (rt *Router) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			rt.writeError(w, r, badRequest("malformed multipart body"))
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			rt.writeError(w, r, badRequest("missing file part"))
			return
		}
		defer f.Close()
		src = f
	}
	data, err := io.ReadAll(src)
	if err != nil {
		rt.writeError(w, r, badRequest("unreadable upload"))
		return
	}
	n, err := rt.Catalog.ImportQuestionsCSV(r.Context(), actor(r), pathID(r, "id"), data)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"imported": n})
}

func (rt *Router) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	q := req.model(0)
	q.ID = pathID(r, "id")
	updated, err := rt.Catalog.UpdateQuestion(r.Context(), actor(r), q)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.Catalog.DeleteQuestion(r.Context(), actor(r), pathID(r, "id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleUpdateOption(w http.ResponseWriter, r *http.Request) {
	var req optionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	// An omitted role keeps the stored one.
	o := req.model(0)
	o.ID = pathID(r, "id")
	o.Role = models.OptionRole(req.Role)
	updated, err := rt.Catalog.UpdateOption(r.Context(), actor(r), o)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) handleDeleteOption(w http.ResponseWriter, r *http.Request) {
	if err := rt.Catalog.DeleteOption(r.Context(), actor(r), pathID(r, "id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
