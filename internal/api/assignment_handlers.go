package api

import (
	"net/http"

	"github.com/soaringjerry/surveyhub/internal/models"
)

func (rt *Router) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	id := pathID(r, "id")
	n, err := rt.Assignments.AssignToDepartment(r.Context(), actor(r), id, req.DepartmentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.Log.Info("survey assigned", "survey_id", id, "department_id", req.DepartmentID, "members", n)
	writeJSON(w, http.StatusCreated, map[string]any{"survey_id": id, "department_id": req.DepartmentID, "assigned": n})
}

func (rt *Router) handleMySurveys(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt(r, "user_id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	page, err := queryPage(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Assignments.ListForUser(r.Context(), actor(r), userID, r.URL.Query().Get("keyword"), page)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleUnfinished(w http.ResponseWriter, r *http.Request) {
	dept, err := queryInt(r, "department_id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	page, err := queryPage(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Assignments.Unfinished(r.Context(), actor(r), pathID(r, "id"), dept, page)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleUnfinishedXLSX(w http.ResponseWriter, r *http.Request) {
	dept, err := queryInt(r, "department_id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Assignments.UnfinishedWorkbook(r.Context(), actor(r), pathID(r, "id"), dept)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeFile(w, res)
}

func (rt *Router) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	us, err := rt.Assignments.Status(r.Context(), actor(r), pathID(r, "uid"), pathID(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, us)
}

func (rt *Router) handleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	var req userStatusRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	uid, id := pathID(r, "uid"), pathID(r, "id")
	status, err := rt.Assignments.UpdateStatus(r.Context(), actor(r), uid, id, models.CompletionStatus(req.Status))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": uid, "survey_id": id, "status": status})
}
