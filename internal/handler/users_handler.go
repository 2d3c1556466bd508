package handler

import (
	"net/http"

	"chatrelay/internal/pkg/resp"
)

// UsersResponse is the data of GET /api/users.
type UsersResponse struct {
	Users       []string `json:"users"`
	Connections int      `json:"connections"`
}

// HandleListUsers reports the active display names and the number of open connections,
// including those that have not picked a name yet.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registry := deps.Hub.Registry()

		resp.RespondSuccess(w, r, UsersResponse{
			Users:       registry.ActiveNames(),
			Connections: registry.Len(),
		})
	}
}
