package httpapi

import (
	"net/http"

	"gradekit/core"
	"gradekit/users"
)

type loginRequest struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	Role     core.Role `json:"role"`
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = core.RoleStudent
	}
	u, err := a.accounts.FindUser(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, u)
}

func (a *api) listUsers(w http.ResponseWriter, r *http.Request) {
	names, err := a.accounts.ListUsernames(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, names)
}

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var in users.NewUser
	if !decodeBody(w, r, &in) {
		return
	}
	u, err := a.accounts.CreateUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, u)
}

func (a *api) getTeacher(w http.ResponseWriter, r *http.Request) {
	u, err := a.accounts.FindTeacher(r.Context(), param(r, "username"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, u)
}

func (a *api) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.accounts.DeleteUser(r.Context(), param(r, "username")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) userByStudent(w http.ResponseWriter, r *http.Request) {
	u, err := a.accounts.FindByStudentID(r.Context(), core.StudentID(param(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, u)
}

func (a *api) userByName(w http.ResponseWriter, r *http.Request) {
	u, err := a.accounts.FindByName(r.Context(), param(r, "name"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, u)
}

func (a *api) listAdmins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.accounts.Admins())
}
