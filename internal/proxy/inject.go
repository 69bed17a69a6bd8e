package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/api-marketplace/internal/response"
)

// Bodies larger than this are passed through untouched.
const maxRewriteBytes = 4 << 20

type readCloser struct {
	io.Reader
	io.Closer
}

// injectRemaining adds remaining_limit to JSON object bodies coming back
// from an adapter. Anything else is forwarded as is.
func injectRemaining(resp *http.Response) error {
	remaining, ok := response.RemainingFromContext(resp.Request.Context())
	if !ok || resp.Body == nil {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "application/json" || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRewriteBytes+1))
	if err != nil {
		return err
	}
	if len(body) > maxRewriteBytes {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	resp.Body.Close()

	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil || object == nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return nil
	}

	object[response.RemainingField] = json.RawMessage(strconv.Itoa(remaining))
	rewritten, err := json.Marshal(object)
	if err != nil {
		return err
	}

	resp.Body = io.NopCloser(bytes.NewReader(rewritten))
	resp.ContentLength = int64(len(rewritten))
	resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))

	return nil
}
