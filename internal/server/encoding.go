package server

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const contentTypeMsgpack = "application/msgpack"

// wantsMsgpack reports whether the Accept header asks for msgpack.
func wantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mediaType == contentTypeMsgpack || mediaType == "application/x-msgpack" {
			return true
		}
	}
	return false
}

// writeResponse encodes v as JSON or, when requested, msgpack. Both use the
// json struct tags.
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if wantsMsgpack(r) {
		w.Header().Set("Content-Type", contentTypeMsgpack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(v); err != nil {
			s.log.Error().Err(err).Msg("Failed to encode msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeResponse(w, r, status, map[string]string{"error": message})
}
