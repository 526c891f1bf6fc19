package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/audit"
	"bazario.org/user-service/internal/session"
)

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended pending_verification deleted"`
}

type lockAccountRequest struct {
	DurationMinutes int `json:"durationMinutes" validate:"omitempty,min=1,max=527040"`
}

type terminateOthersRequest struct {
	KeepSessionToken string `json:"keepSessionToken" validate:"required"`
}

type roleNameRequest struct {
	Role string `json:"role" validate:"required,min=2,max=64"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	snap, err := a.svc.GetUser(r.Context(), p.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUserResource routes /v1/users/{id} and its sub-resources.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getUser(w, r, userID)
		case http.MethodDelete:
			a.deleteUser(w, r, userID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
		return
	}

	switch parts[1] {
	case "status":
		a.updateUserStatus(w, r, userID)
	case "lock":
		a.lockUser(w, r, userID)
	case "unlock":
		a.unlockUser(w, r, userID)
	case "activities":
		a.listUserActivities(w, r, userID)
	case "sessions":
		if len(parts) == 3 && parts[2] == "terminate-others" {
			a.terminateOtherSessions(w, r, userID)
			return
		}
		a.listUserSessions(w, r, userID)
	case "roles":
		a.userRoles(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.ensureSelfOrAdmin(w, r, userID); !ok {
		return
	}
	snap, err := a.svc.GetUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.ensurePermission(w, r, account.PermUserDelete); !ok {
		return
	}
	hard := r.URL.Query().Get("hard") == "true"
	var err error
	if hard {
		err = a.svc.DeleteUser(r.Context(), userID)
	} else {
		err = a.svc.SoftDeleteUser(r.Context(), userID)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{
		"user_id": userID,
		"hard":    hard,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) updateUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.ensurePermission(w, r, account.PermUserUpdate); !ok {
		return
	}
	var req updateStatusRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.UpdateStatus(r.Context(), userID, account.Status(req.Status)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.status_updated", map[string]any{
		"user_id": userID,
		"status":  req.Status,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) lockUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensurePermission(w, r, account.PermUserSuspend); !ok {
		return
	}
	var req lockAccountRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.LockAccount(r.Context(), userID, time.Duration(req.DurationMinutes)*time.Minute); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.locked", map[string]any{
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) unlockUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensurePermission(w, r, account.PermUserSuspend); !ok {
		return
	}
	if err := a.svc.UnlockAccount(r.Context(), userID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.unlocked", map[string]any{
		"user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listUserActivities(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.ensureSelfOrAdmin(w, r, userID); !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 500 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = v
	}
	list, err := a.svc.UserActivities(r.Context(), userID, limit)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (a *API) listUserSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.ensureSelfOrAdmin(w, r, userID); !ok {
		return
	}
	var (
		list []*session.Session
		err  error
	)
	if r.URL.Query().Get("active") == "true" {
		list, err = a.svc.ActiveSessions(r.Context(), userID)
	} else {
		list, err = a.svc.UserSessions(r.Context(), userID)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sessionViews(list)})
}

func (a *API) terminateOtherSessions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.ensureSelfOrAdmin(w, r, userID); !ok {
		return
	}
	var req terminateOthersRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, err := a.svc.TerminateOtherSessions(r.Context(), userID, req.KeepSessionToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"terminated": n})
}

func (a *API) userRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := a.ensurePermission(w, r, account.PermUserUpdate); !ok {
			return
		}
		var req roleNameRequest
		if err := a.decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.AssignRole(r.Context(), userID, req.Role); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.role_assigned", map[string]any{
			"user_id": userID,
			"role":    req.Role,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if _, ok := a.ensurePermission(w, r, account.PermUserUpdate); !ok {
			return
		}
		var req roleNameRequest
		if err := a.decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.RemoveRole(r.Context(), userID, req.Role); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.role_removed", map[string]any{
			"user_id": userID,
			"role":    req.Role,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

// sessionView hides the refresh token; session listings are for device
// management, not credential recovery.
type sessionView struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	DeviceType   string     `json:"deviceType,omitempty"`
	DeviceID     string     `json:"deviceId,omitempty"`
	IP           string     `json:"ip,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	Location     string     `json:"location,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity time.Time  `json:"lastActivity"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
	Reason       string     `json:"terminatedReason,omitempty"`
}

func sessionViews(list []*session.Session) []sessionView {
	views := make([]sessionView, 0, len(list))
	for _, s := range list {
		views = append(views, sessionView{
			ID:           s.ID,
			Status:       string(s.Status),
			DeviceType:   s.Device.Type,
			DeviceID:     s.Device.ID,
			IP:           s.Device.IP,
			UserAgent:    s.Device.UserAgent,
			Location:     s.Device.Location,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			TerminatedAt: s.TerminatedAt,
			Reason:       s.TerminatedReason,
		})
	}
	return views
}
