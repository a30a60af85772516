package api

import (
	"encoding/json"
	"net/http"
)

type (
	// Context carries one API request.
	Context struct {
		Request *http.Request
		Writer  http.ResponseWriter
	}

	// Handler serves an API route.
	Handler func(ctx *Context)

	// Json is a JSON object response.
	Json map[string]any
)

// JSON writes data with status code.
func (ctx *Context) JSON(code int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		ctx.Writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx.Writer.Header().Set("Content-Type", "application/json")
	ctx.Writer.WriteHeader(code)

	_, _ = ctx.Writer.Write(buf)
}

// Param returns the value of a path wildcard.
func (ctx *Context) Param(key string) string {
	return ctx.Request.PathValue(key)
}

func wrap(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(&Context{Request: r, Writer: w})
	}
}
