package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reelmint/internal/domain"
)

func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (a *App) CreditTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	entries, err := a.Ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"id":            e.ID,
			"kind":          string(e.Kind),
			"amount":        e.Amount,
			"balance_after": e.BalanceAfter,
			"reason":        e.Reason,
			"created_at":    e.CreatedAt,
		}
		if e.TaskID != "" {
			item["task_id"] = e.TaskID
		}
		if e.ExpiresAt != nil {
			item["expires_at"] = e.ExpiresAt
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type rechargeRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid4"`
	Amount    int64      `json:"amount" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason" validate:"max=200"`
}

// CreditRecharge grants credits. Internal endpoint, guarded by the
// admin token.
func (a *App) CreditRecharge(w http.ResponseWriter, r *http.Request) {
	if a.AdminToken == "" || r.Header.Get("X-Admin-Token") != a.AdminToken {
		a.error(w, http.StatusUnauthorized, "unauthorized", "admin token required")
		return
	}
	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.fail(w, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
		return
	}
	entry, err := a.Ledger.Recharge(r.Context(), req.UserID, req.Amount, req.ExpiresAt, req.Reason)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"id":            entry.ID,
		"amount":        entry.Amount,
		"balance_after": entry.BalanceAfter,
	})
}
