package api

import (
	"errors"
	"net/http"

	"github.com/soaringjerry/surveyhub/internal/services"
)

func (rt *Router) handleOpen(w http.ResponseWriter, r *http.Request) {
	res, err := rt.Submissions.OpenOrResume(r.Context(), actor(r), pathID(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSubmit accepts the survey form as multipart or urlencoded. The
// "action" field selects save (draft) or submit (final); submit is the default.
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes+rt.MaxUploadBytes*8)
	form, err := parseSubmissionForm(r, rt.MaxUploadBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = badRequest("request body too large")
		}
		rt.writeError(w, r, err)
		return
	}
	defer form.Close()

	req := services.SubmitRequest{
		SurveyID: pathID(r, "id"),
		Actor:    actor(r),
		Fields:   form.Fields,
		Files:    form.Files,
	}
	switch form.Meta["action"] {
	case "save":
		req.IsSave = true
	case "", "submit":
	default:
		rt.writeError(w, r, badRequest("action must be save or submit"))
		return
	}
	res, err := rt.Submissions.Submit(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.Log.Info("survey response stored",
		"survey_id", res.SurveyID, "user_id", res.UserID, "status", res.Status,
		"fields", res.FieldsApplied, "files", res.FilesStored)
	writeJSON(w, http.StatusOK, res)
}

// handleRemake reopens a respondent's survey for editing.
func (rt *Router) handleRemake(w http.ResponseWriter, r *http.Request) {
	res, err := rt.Submissions.Submit(r.Context(), services.SubmitRequest{
		SurveyID:     pathID(r, "id"),
		Actor:        actor(r),
		Action:       services.ActionRemake,
		TargetUserID: pathID(r, "uid"),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.Log.Info("survey remade", "survey_id", res.SurveyID, "target_user_id", res.UserID)
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r, "user_id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Reports.Details(r.Context(), actor(r), pathID(r, "id"), userID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
