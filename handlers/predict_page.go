package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"supply-chain-risk/inference"
)

// PageData is rendered by predict.html.
type PageData struct {
	Options inference.Options
	Stats   inference.Stats
	Input   inference.Input
	Result  *inference.Prediction
	Error   string
	Ready   bool
}

func (h *Handler) page(in inference.Input) PageData {
	return PageData{
		Options: h.infer.Options(),
		Stats:   h.infer.Stats(),
		Input:   in,
		Ready:   h.infer.Ready(),
	}
}

// PredictPage renders the empty prediction form.
func (h *Handler) PredictPage(c *gin.Context) {
	data := h.page(inference.Input{
		ShippingMode:  inference.ShippingModes[0],
		ScheduledDays: 3,
		RiskScore:     0.5,
	})
	c.HTML(http.StatusOK, "predict.html", data)
}

// PredictForm handles the form submission and renders the result on the
// same page.
func (h *Handler) PredictForm(c *gin.Context) {
	var in inference.Input
	if err := c.ShouldBind(&in); err != nil {
		data := h.page(in)
		data.Error = "Invalid input: " + err.Error()
		c.HTML(http.StatusBadRequest, "predict.html", data)
		return
	}

	data := h.page(in)
	result, err := h.infer.Predict(in)
	if err != nil {
		status, msg := predictError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("prediction failed", "error", err)
		}
		data.Error = msg
		c.HTML(status, "predict.html", data)
		return
	}

	data.Result = result
	c.HTML(http.StatusOK, "predict.html", data)
}
