package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mailkeep/core/internal/services"
)

// SyncHandler serves the sync trigger control surface
type SyncHandler struct {
	orchestrator *services.Orchestrator
	runService   *services.RunService
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(orchestrator *services.Orchestrator, runService *services.RunService) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		runService:   runService,
	}
}

// TriggerRequest represents the request to trigger a sync.
// An empty account name means "sync all accounts".
type TriggerRequest struct {
	Account string `json:"account"`
}

// ListAccounts returns every configured account with its sync status
// GET /api/accounts
func (h *SyncHandler) ListAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"accounts": h.orchestrator.StatusAll(),
		},
	})
}

// TriggerSync starts a sync for one account or for all accounts
// POST /api/sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "Invalid request body",
					"details": err.Error(),
				},
			})
			return
		}
	}

	if req.Account == "" {
		started, skipped := h.orchestrator.TriggerAll()
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"data": gin.H{
				"started": started,
				"skipped": skipped,
			},
		})
		return
	}

	err := h.orchestrator.TriggerSync(req.Account)
	switch {
	case errors.Is(err, services.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Unknown account: " + req.Account,
			},
		})
	case errors.Is(err, services.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ALREADY_RUNNING",
				"message": "Sync already in progress for account: " + req.Account,
			},
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SYNC_FAILED",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"data": gin.H{
				"started": []string{req.Account},
			},
		})
	}
}

// ListRuns returns the recent sync run history
// GET /api/runs?account=&limit=
func (h *SyncHandler) ListRuns(c *gin.Context) {
	account := c.Query("account")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := h.runService.RecentRuns(account, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"runs": runs,
		},
	})
}
