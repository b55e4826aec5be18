package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/repository"
	"smartmonitor/internal/strategies"
	"smartmonitor/pkg/solana/txlookup"
)

const maxListLimit = 500

// Handler serves the admin API. Store is required, the funcs are
// optional.
type Handler struct {
	Store repository.Store

	// CurrentRules returns the rule set currently applied.
	CurrentRules func() []strategies.MonitorRule

	// CheckHealth probes the upstream rpc endpoints.
	CheckHealth func(ctx context.Context) []txlookup.EndpointCheck

	// OnAccountsChanged runs after an account was added or removed, so the
	// worker can pick it up without waiting for the next reload.
	OnAccountsChanged func(ctx context.Context) error

	Logger *log.Logger
}

func (h *Handler) logger() *log.Logger {
	if h.Logger == nil {
		return log.StandardLogger()
	}
	return h.Logger
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"msg": "ok", "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"msg": msg, "error": msg})
}

// storeError maps repository errors onto status codes.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		fail(c, http.StatusNotFound, "Record not found")
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// Health reports ok, or 503 with the failing endpoints.
func (h *Handler) Health(c *gin.Context) {
	if h.CheckHealth == nil {
		ok(c, http.StatusOK, nil)
		return
	}
	checks := h.CheckHealth(c.Request.Context())
	for _, check := range checks {
		if !check.OK {
			c.JSON(http.StatusServiceUnavailable, gin.H{"msg": "unhealthy", "data": checks})
			return
		}
	}
	ok(c, http.StatusOK, checks)
}

// ListRules returns the applied monitor rules.
func (h *Handler) ListRules(c *gin.Context) {
	rules := []strategies.MonitorRule{}
	if h.CurrentRules != nil {
		if current := h.CurrentRules(); current != nil {
			rules = current
		}
	}
	ok(c, http.StatusOK, gin.H{"monitors": rules})
}

// ListTrackedMints supports smart_address, status and limit query params.
func (h *Handler) ListTrackedMints(c *gin.Context) {
	filter := repository.TrackedMintFilter{
		SmartAddress: c.Query("smart_address"),
		Status:       c.Query("status"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			fail(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	tokens, err := h.Store.ListTrackedMints(c.Request.Context(), filter)
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, http.StatusOK, tokens)
}

// DeactivateMint marks a tracked mint inactive.
func (h *Handler) DeactivateMint(c *gin.Context) {
	if err := h.Store.DeactivateMint(c.Request.Context(), c.Param("mint")); err != nil {
		storeError(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// AccountRequest is the JSON body accepted by AddAccount.
type AccountRequest struct {
	Address string `json:"address" binding:"required"`
}

// AddAccount takes the address from the query string, or from a JSON body
// on POST.
func (h *Handler) AddAccount(c *gin.Context) {
	address := c.Query("address")
	if address == "" && c.Request.Method == http.MethodPost {
		var req AccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		address = req.Address
	}
	if address == "" {
		fail(c, http.StatusBadRequest, "address is required")
		return
	}

	account, err := h.Store.AddAccount(c.Request.Context(), address)
	if err != nil {
		storeError(c, err)
		return
	}
	h.logger().WithField("address", address).Info("Account added")
	h.notifyAccounts(c.Request.Context())
	ok(c, http.StatusCreated, account)
}

// ListAccounts returns the active accounts.
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.Store.ListAccounts(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	ok(c, http.StatusOK, accounts)
}

// DeleteAccount soft deletes an account.
func (h *Handler) DeleteAccount(c *gin.Context) {
	address := c.Param("address")
	if err := h.Store.DeleteAccount(c.Request.Context(), address); err != nil {
		storeError(c, err)
		return
	}
	h.logger().WithField("address", address).Info("Account removed")
	h.notifyAccounts(c.Request.Context())
	ok(c, http.StatusOK, nil)
}

func (h *Handler) notifyAccounts(ctx context.Context) {
	if h.OnAccountsChanged == nil {
		return
	}
	if err := h.OnAccountsChanged(context.WithoutCancel(ctx)); err != nil {
		h.logger().WithError(err).Warn("Rule reload after account change failed")
	}
}
