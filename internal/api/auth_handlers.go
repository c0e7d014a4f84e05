package api

import (
	"net/http"

	"github.com/soaringjerry/surveyhub/internal/middleware"
	"github.com/soaringjerry/surveyhub/internal/services"
)

func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Auth.Register(r.Context(), services.NewUser{
		Username:     req.Username,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.Log.Info("user registered", "user_id", res.UserID, "ip", middleware.ClientIP(r))
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		rt.Log.Warn("login failed", "ip", middleware.ClientIP(r))
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	c, _ := middleware.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user_id": c.UID, "username": c.Username, "role": c.Role})
}

func (rt *Router) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	u, err := rt.Auth.CreateUser(r.Context(), actor(r), services.NewUser{
		Username:     req.Username,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (rt *Router) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := rt.Auth.ListDepartments(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (rt *Router) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req departmentRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	d, err := rt.Auth.CreateDepartment(r.Context(), actor(r), req.Name)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}
