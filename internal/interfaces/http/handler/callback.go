package handler

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="referrer" content="no-referrer">
<title>{{.Title}}</title>
<style>body{font-family:sans-serif;margin:4rem auto;max-width:28rem;text-align:center;color:#333}</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

type callbackView struct {
	Title   string
	Message string
}

// CallbackHandler serves the OAuth redirect target. The consent window
// controller reads code, state and error from the address; this page only
// tells the user what happened and performs no exchange.
type CallbackHandler struct {
	BaseHandler
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler() *CallbackHandler {
	return &CallbackHandler{}
}

// Callback godoc
// @ID           oauthCallback
// @Summary      OAuth redirect page
// @Description  Landing page of the marketplace consent redirect
// @Tags         connector
// @Produce      html
// @Param        code  query string false "Authorization code"
// @Param        state query string false "Attempt state"
// @Param        error query string false "Provider error code"
// @Success      200 {string} string "HTML page"
// @Router       /oauth/callback [get]
func (h *CallbackHandler) Callback(c *gin.Context) {
	view := callbackView{
		Title:   "Authorization received",
		Message: "You can close this window and return to the application.",
	}
	switch {
	case c.Query("error") == "access_denied":
		view = callbackView{Title: "Authorization cancelled", Message: "No access was granted. You can close this window."}
	case c.Query("error") != "":
		view = callbackView{Title: "Authorization failed", Message: "The marketplace reported: " + c.Query("error")}
	case c.Query("code") == "" || c.Query("state") == "":
		view = callbackView{Title: "Authorization incomplete", Message: "The marketplace did not return an authorization code."}
	}

	c.Render(http.StatusOK, render.HTML{Template: callbackPage, Name: "callback", Data: view})
}
