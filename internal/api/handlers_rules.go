package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"condition-engine/internal/auth"
	"condition-engine/internal/condition"
	"condition-engine/internal/database"
	"condition-engine/internal/evaluator"
	"condition-engine/internal/events"
)

// getUserID returns the authenticated user, or a fixed id when auth is
// disabled so single-operator deployments work without tokens.
func (s *Server) getUserID(c *gin.Context) string {
	if id := auth.UserID(c); id != "" {
		return id
	}
	return "default-user"
}

// ruleRequest is the create/update payload. The tree arrives as the
// builder's wire JSON.
type ruleRequest struct {
	Name      string          `json:"name" binding:"required"`
	Symbol    string          `json:"symbol" binding:"required"`
	Timeframe string          `json:"timeframe" binding:"required"`
	Tree      json.RawMessage `json:"tree" binding:"required"`
	Enabled   bool            `json:"enabled"`
}

// parseAndValidateTree decodes a tree and checks its structural
// invariants, writing the error response on failure.
func parseAndValidateTree(c *gin.Context, raw json.RawMessage) (*condition.Group, bool) {
	root, err := condition.ParseTree(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed condition tree: " + err.Error()})
		return nil, false
	}
	if issues := condition.Validate(root); len(issues) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid condition tree", "issues": issues})
		return nil, false
	}
	return root, true
}

func (s *Server) handleGetIndicatorCatalog(c *gin.Context) {
	catalog := make(map[string]map[string]float64)
	for _, name := range condition.IndicatorNames() {
		catalog[name] = condition.IndicatorDefaults(name)
	}
	c.JSON(http.StatusOK, gin.H{"indicators": catalog})
}

func (s *Server) handleListRules(c *gin.Context) {
	rules, err := s.db.ListRules(c.Request.Context(), s.getUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
		return
	}
	if rules == nil {
		rules = []database.Rule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (s *Server) handleCreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := parseAndValidateTree(c, req.Tree); !ok {
		return
	}

	rule := &database.Rule{
		UserID:    s.getUserID(c),
		Name:      req.Name,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Tree:      req.Tree,
		Enabled:   req.Enabled,
	}
	if err := s.db.CreateRule(c.Request.Context(), rule); err != nil {
		s.logger.Error().Err(err).Msg("failed to create rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
		return
	}

	s.eventBus.Publish(events.Event{
		Type: events.EventRuleCreated,
		Data: map[string]interface{}{"rule_id": rule.ID, "name": rule.Name},
	})
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleGetRule(c *gin.Context) {
	rule, ok := s.loadOwnedRule(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(c *gin.Context) {
	rule, ok := s.loadOwnedRule(c)
	if !ok {
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := parseAndValidateTree(c, req.Tree); !ok {
		return
	}

	rule.Name = req.Name
	rule.Symbol = req.Symbol
	rule.Timeframe = req.Timeframe
	rule.Tree = req.Tree
	rule.Enabled = req.Enabled

	if err := s.db.UpdateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update rule"})
		return
	}

	s.eventBus.Publish(events.Event{
		Type: events.EventRuleUpdated,
		Data: map[string]interface{}{"rule_id": rule.ID, "name": rule.Name},
	})
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	rule, ok := s.loadOwnedRule(c)
	if !ok {
		return
	}

	if err := s.db.DeleteRule(c.Request.Context(), rule.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete rule"})
		return
	}

	s.eventBus.Publish(events.Event{
		Type: events.EventRuleDeleted,
		Data: map[string]interface{}{"rule_id": rule.ID},
	})
	c.JSON(http.StatusOK, gin.H{"deleted": rule.ID})
}

// handleValidateTree checks a tree without persisting it, for builder-side
// feedback before save.
func (s *Server) handleValidateTree(c *gin.Context) {
	var req struct {
		Tree json.RawMessage `json:"tree" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root, err := condition.ParseTree(req.Tree)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "issues": []string{"malformed tree: " + err.Error()}})
		return
	}
	issues := condition.Validate(root)
	c.JSON(http.StatusOK, gin.H{"valid": len(issues) == 0, "issues": issues})
}

// handleEvaluateRule runs one on-demand evaluation cycle against current
// market data. The dry run uses fresh crossover state, so crossover leaves
// report false; the scheduled runner owns the persistent stream.
func (s *Server) handleEvaluateRule(c *gin.Context) {
	rule, ok := s.loadOwnedRule(c)
	if !ok {
		return
	}

	root, valid := parseAndValidateTree(c, rule.Tree)
	if !valid {
		return
	}

	result := s.eval.Evaluate(root, rule.Symbol, rule.Timeframe, evaluator.NewMemoryStateStore())
	c.JSON(http.StatusOK, gin.H{
		"rule_id":   rule.ID,
		"symbol":    rule.Symbol,
		"timeframe": rule.Timeframe,
		"fired":     result.Fired,
		"leaves":    result.Leaves,
	})
}

func (s *Server) loadOwnedRule(c *gin.Context) (*database.Rule, bool) {
	rule, err := s.db.GetRule(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrRuleNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rule"})
		return nil, false
	}
	if rule.UserID != s.getUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return nil, false
	}
	return rule, true
}
