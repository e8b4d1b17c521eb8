package apihandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Codes carried in the error envelope. These are request-level codes;
// job-level failure codes (InvalidImage, InternalError) live on the
// job record itself.
const (
	codeBadRequest = "bad_request"
	codeNotFound   = "not_found"
	codeInternal   = "internal_error"
)

// Failed requests all share one envelope:
// {"error": {"code": "...", "message": "..."}}
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, http.StatusBadRequest, codeBadRequest, msg)
}

func notFound(c *gin.Context, msg string) {
	respondError(c, http.StatusNotFound, codeNotFound, msg)
}

func internalError(c *gin.Context, msg string) {
	respondError(c, http.StatusInternalServerError, codeInternal, msg)
}
