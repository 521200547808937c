package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"condition-engine/internal/condition"
	"condition-engine/internal/events"
)

// Edit operation names accepted by the edits endpoint. They mirror the
// builder's editor actions one to one.
const (
	EditAddCondition     = "addCondition"
	EditAddGroup         = "addGroup"
	EditUpdateOperand    = "updateOperand"
	EditUpdateOperator   = "updateOperator"
	EditToggleCombinator = "toggleCombinator"
	EditDuplicateLeaf    = "duplicateLeaf"
	EditRemoveNode       = "removeNode"
	EditToggleCollapsed  = "toggleCollapsed"
)

// editRequest is one structural operation addressed by path.
type editRequest struct {
	Op       string                 `json:"op" binding:"required"`
	Path     condition.Path         `json:"path"`
	Side     condition.OperandSide  `json:"side,omitempty"`
	Patch    condition.OperandPatch `json:"patch,omitempty"`
	Operator condition.Operator     `json:"operator,omitempty"`
}

// handleEditRule applies one editor operation to a rule's tree and
// persists the resulting tree. The stored tree is replaced wholesale, the
// controlled-value pattern the dashboard uses.
func (s *Server) handleEditRule(c *gin.Context) {
	rule, ok := s.loadOwnedRule(c)
	if !ok {
		return
	}

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	root, err := condition.ParseTree(rule.Tree)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored tree is malformed"})
		return
	}

	newRoot, err := s.applyEdit(root, req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, condition.ErrInvalidPath) || errors.Is(err, condition.ErrNotGroup) || errors.Is(err, condition.ErrNotLeaf) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	encoded, err := condition.EncodeTree(newRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode tree"})
		return
	}

	rule.Tree = json.RawMessage(encoded)
	if err := s.db.UpdateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist tree"})
		return
	}

	s.eventBus.Publish(events.Event{
		Type: events.EventRuleUpdated,
		Data: map[string]interface{}{"rule_id": rule.ID, "op": req.Op},
	})
	c.JSON(http.StatusOK, rule)
}

func (s *Server) applyEdit(root *condition.Group, req editRequest) (*condition.Group, error) {
	switch req.Op {
	case EditAddCondition:
		return s.editor.AddCondition(root, req.Path)
	case EditAddGroup:
		return s.editor.AddGroup(root, req.Path)
	case EditUpdateOperand:
		return s.editor.UpdateLeafOperand(root, req.Path, req.Side, req.Patch)
	case EditUpdateOperator:
		return s.editor.UpdateLeafOperator(root, req.Path, req.Operator)
	case EditToggleCombinator:
		return s.editor.ToggleCombinator(root, req.Path)
	case EditDuplicateLeaf:
		return s.editor.DuplicateLeaf(root, req.Path)
	case EditRemoveNode:
		return s.editor.RemoveNode(root, req.Path)
	case EditToggleCollapsed:
		return s.editor.ToggleCollapsed(root, req.Path)
	default:
		return nil, errors.New("unknown edit operation: " + req.Op)
	}
}
