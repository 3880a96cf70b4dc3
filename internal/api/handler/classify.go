package handler

import (
	"net/http"

	"github.com/mcoot/lazysignup-go/internal/api/response"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
)

// ClassifyHandler reports whether the caller would get a lazy user
type ClassifyHandler struct {
	classifier *classifier.Classifier
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(c *classifier.Classifier) *ClassifyHandler {
	return &ClassifyHandler{classifier: c}
}

// Classify handles GET /api/v1/classify
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	ua := r.UserAgent()
	response.JSON(w, http.StatusOK, response.ClassifyFromAgent(ua, h.classifier.Describe(ua)))
}
