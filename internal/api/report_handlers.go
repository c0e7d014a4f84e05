package api

import "net/http"

func (rt *Router) handleStatistics(w http.ResponseWriter, r *http.Request) {
	dept, err := queryInt(r, "department_id")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Reports.Statistics(r.Context(), actor(r), pathID(r, "id"), dept)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport streams the survey's valid answers as CSV; format is long or wide.
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.Reports.ExportCSV(r.Context(), actor(r), pathID(r, "id"), r.URL.Query().Get("format"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeFile(w, res)
}
