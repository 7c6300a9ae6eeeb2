package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"supply-chain-risk/inference"
)

// PostPredict accepts a JSON inference.Input and returns the prediction.
func (h *Handler) PostPredict(c *gin.Context) {
	var in inference.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return
	}

	result, err := h.infer.Predict(in)
	if err != nil {
		status, msg := predictError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("prediction failed", "error", err)
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.infer.Options())
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.infer.Stats())
}
