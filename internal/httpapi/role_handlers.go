package httpapi

import (
	"net/http"
	"strings"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/audit"
	"bazario.org/user-service/internal/auth"
)

type roleRequest struct {
	CompanyID   string   `json:"companyId" validate:"omitempty,max=64"`
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	Description string   `json:"description" validate:"max=256"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,min=2,max=64"`
	Active      bool     `json:"active"`
}

type roleView struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	SystemRole  bool      `json:"systemRole"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRoleView(r *account.Role) roleView {
	return roleView{
		ID:          r.ID,
		CompanyID:   r.CompanyID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.Permissions.Keys(),
		SystemRole:  r.SystemRole,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, ok := a.principal(w, r)
		if !ok {
			return
		}
		companyID := r.URL.Query().Get("companyId")
		if companyID == "" {
			companyID = p.CompanyID
		}
		list, err := a.svc.ListRoles(r.Context(), companyID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		views := make([]roleView, 0, len(list))
		for _, role := range list {
			views = append(views, toRoleView(role))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": views})
	case http.MethodPost:
		if _, ok := a.ensurePermission(w, r, account.PermSystemSettings); !ok {
			return
		}
		var req roleRequest
		if err := a.decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), auth.RoleRequest{
			CompanyID:   req.CompanyID,
			Name:        req.Name,
			Description: req.Description,
			Permissions: req.Permissions,
			Active:      req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.created", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, toRoleView(role))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	roleID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.principal(w, r); !ok {
			return
		}
		role, err := a.svc.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRoleView(role))
	case http.MethodPut:
		if _, ok := a.ensurePermission(w, r, account.PermSystemSettings); !ok {
			return
		}
		var req roleRequest
		if err := a.decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), roleID, auth.RoleRequest{
			CompanyID:   req.CompanyID,
			Name:        req.Name,
			Description: req.Description,
			Permissions: req.Permissions,
			Active:      req.Active,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{
			"role_id": role.ID,
		})
		writeJSON(w, http.StatusOK, toRoleView(role))
	case http.MethodDelete:
		if _, ok := a.ensurePermission(w, r, account.PermSystemSettings); !ok {
			return
		}
		if err := a.svc.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{
			"role_id": roleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
