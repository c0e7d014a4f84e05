package api

import "net/http"

func (rt *Router) handleListCategories(w http.ResponseWriter, r *http.Request) {
	page, err := queryPage(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Catalog.ListCategories(r.Context(), r.URL.Query().Get("keyword"), page)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleParentCategories(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Catalog.ParentCategories(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (rt *Router) handleAllCategories(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Catalog.AllCategories(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (rt *Router) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.Catalog.CreateCategory(r.Context(), actor(r), req.model(0))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (rt *Router) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	c, err := rt.Catalog.UpdateCategory(r.Context(), actor(r), req.model(pathID(r, "id")))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (rt *Router) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := rt.Catalog.DeleteCategory(r.Context(), actor(r), pathID(r, "id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleCategorySurveys(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Catalog.CategorySurveys(r.Context(), pathID(r, "id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (rt *Router) handleSetSurveyCategory(w http.ResponseWriter, r *http.Request) {
	var req surveyCategoryRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	id := pathID(r, "id")
	if err := rt.Catalog.SetSurveyCategory(r.Context(), actor(r), id, req.CategoryID); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "category_id": req.CategoryID})
}
