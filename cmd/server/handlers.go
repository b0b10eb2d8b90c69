package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sheetforge/sheetforge"
	"github.com/sheetforge/sheetforge/internal/recalculator"
)

// server bundles the live registry, recalc gate, and recalculator
// backend each handler below closes over.
type server struct {
	registry     *sheetforge.ForkRegistry
	gate         *sheetforge.RecalcGate
	recalculator recalculator.Recalculator
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch sheetforge.CodeOf(err) {
	case sheetforge.NotFound:
		status = http.StatusNotFound
	case sheetforge.Conflict:
		status = http.StatusConflict
	case sheetforge.BaseChanged:
		status = http.StatusConflict
	case sheetforge.Capacity:
		status = http.StatusInsufficientStorage
	case sheetforge.PolicyDenied:
		status = http.StatusForbidden
	case sheetforge.MalformedInput:
		status = http.StatusBadRequest
	case sheetforge.BackendUnavailable:
		status = http.StatusBadGateway
	case sheetforge.Timeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *server) createFork(c *gin.Context) {
	var req struct {
		WorkbookPath string `json:"workbook_path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.registry.Create(c.Request.Context(), req.WorkbookPath)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fork_id": id, "base_path": req.WorkbookPath})
}

func (s *server) editBatch(c *gin.Context) {
	forkID := c.Param("id")
	var req struct {
		Sheet string                   `json:"sheet" binding:"required"`
		Edits []sheetforge.CellEdit `json:"edits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total, err := s.registry.ApplyEditBatch(c.Request.Context(), forkID, req.Sheet, req.Edits)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edits_applied": len(req.Edits), "total_edits": total})
}

func (s *server) styleBatch(c *gin.Context) {
	forkID := c.Param("id")
	var req struct {
		Ops   []sheetforge.StyleOp          `json:"ops"`
		Mode  sheetforge.StyleBatchMode `json:"mode" binding:"required"`
		Label string                           `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.registry.ApplyStyleBatch(c.Request.Context(), forkID, req.Ops, req.Mode, req.Label)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fork_id":     forkID,
		"mode":        req.Mode,
		"change_id":   result.ChangeID,
		"ops_applied": result.OpsApplied,
		"summary":     result.Summary,
	})
}

func (s *server) getEdits(c *gin.Context) {
	edits, err := s.registry.GetEdits(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edits": edits})
}

func (s *server) getChangeset(c *gin.Context) {
	cs, err := s.registry.GetChangeset(c.Request.Context(), c.Param("id"), c.Query("sheet"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (s *server) recalculate(c *gin.Context) {
	var req struct {
		TimeoutMS int `json:"timeout_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	result, err := s.registry.Recalculate(c.Request.Context(), s.gate, s.recalculator, c.Param("id"), timeout)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duration_ms": result.Duration.Milliseconds(), "backend": result.Backend})
}

func (s *server) listForks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"forks": s.registry.ListForks()})
}

func (s *server) discardFork(c *gin.Context) {
	if err := s.registry.Discard(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discarded": true})
}

func (s *server) saveFork(c *gin.Context) {
	var req struct {
		Target         string `json:"target"`
		DropFork       bool   `json:"drop_fork"`
		AllowOverwrite bool   `json:"allow_overwrite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.registry.SaveFork(c.Request.Context(), c.Param("id"), req.Target, req.DropFork, req.AllowOverwrite)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved_to": result.SavedTo, "fork_dropped": result.ForkDropped})
}

func (s *server) checkpointFork(c *gin.Context) {
	var req struct {
		Label string `json:"label"`
	}
	c.ShouldBindJSON(&req)
	cp, total, err := s.registry.CreateCheckpoint(c.Request.Context(), c.Param("id"), req.Label)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoint": cp, "total": total})
}

func (s *server) listCheckpoints(c *gin.Context) {
	cps, err := s.registry.ListCheckpoints(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": cps})
}

func (s *server) restoreCheckpoint(c *gin.Context) {
	cp, err := s.registry.RestoreCheckpoint(c.Request.Context(), c.Param("id"), c.Param("checkpoint_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": cp})
}

func (s *server) deleteCheckpoint(c *gin.Context) {
	if err := s.registry.DeleteCheckpoint(c.Request.Context(), c.Param("id"), c.Param("checkpoint_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *server) listStagedChanges(c *gin.Context) {
	scs, err := s.registry.ListStagedChanges(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged_changes": scs})
}

func (s *server) applyStagedChange(c *gin.Context) {
	summary, err := s.registry.ApplyStagedChange(c.Request.Context(), c.Param("id"), c.Param("change_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *server) discardStagedChange(c *gin.Context) {
	if err := s.registry.DiscardStagedChange(c.Request.Context(), c.Param("id"), c.Param("change_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"discarded": true})
}

// registerRoutes binds every operation onto s's handlers via the
// verb/path registration table.
func (s *server) registerRoutes() {
	RegisterMethod(POST, "/forks", s.createFork)
	RegisterMethod(POST, "/forks/:id/edits", s.editBatch)
	RegisterMethod(POST, "/forks/:id/styles", s.styleBatch)
	RegisterMethod(GET, "/forks/:id/edits", s.getEdits)
	RegisterMethod(GET, "/forks/:id/changeset", s.getChangeset)
	RegisterMethod(POST, "/forks/:id/recalculate", s.recalculate)
	RegisterMethod(GET, "/forks", s.listForks)
	RegisterMethod(DELETE, "/forks/:id", s.discardFork)
	RegisterMethod(POST, "/forks/:id/save", s.saveFork)
	RegisterMethod(POST, "/forks/:id/checkpoints", s.checkpointFork)
	RegisterMethod(GET, "/forks/:id/checkpoints", s.listCheckpoints)
	RegisterMethod(POST, "/forks/:id/checkpoints/:checkpoint_id/restore", s.restoreCheckpoint)
	RegisterMethod(DELETE, "/forks/:id/checkpoints/:checkpoint_id", s.deleteCheckpoint)
	RegisterMethod(GET, "/forks/:id/staged-changes", s.listStagedChanges)
	RegisterMethod(POST, "/forks/:id/staged-changes/:change_id/apply", s.applyStagedChange)
	RegisterMethod(DELETE, "/forks/:id/staged-changes/:change_id", s.discardStagedChange)
}
