package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/client"
)

const maxBodyBytes = 1 << 20

const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
)

// MethodArgs are the arguments a host passes with a method call. Only start
// reads them.
type MethodArgs struct {
	MagnetURL    *string `json:"magnetUrl"`
	DownloadPath *string `json:"downloadPath"`
}

// MethodResult carries the legacy result ("" or null on failure) and, when
// the call failed, the error kind.
type MethodResult struct {
	Result any    `json:"result"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) logResponse(endpoint string, remote string, code int) {
	s.log.Info(fmt.Sprintf("%s (%d) %s", endpoint, code, remote))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, endpoint string, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error(fmt.Sprintf("Writing %s response: %v", endpoint, err))
	}
	s.logResponse(endpoint, r.RemoteAddr, code)
}

func (s *Server) methodError(w http.ResponseWriter, r *http.Request, method string, code int, errCode string, message string) {
	s.writeJSON(w, r, method, code, MethodError{Code: errCode, Message: message})
}

func failed(result any, err error) MethodResult {
	return MethodResult{
		Result: result,
		Kind:   client.KindOf(err).String(),
		Error:  err.Error(),
	}
}

// CallMethod dispatches POST /methods/{method}.
func (s *Server) CallMethod(w http.ResponseWriter, r *http.Request) {
	method := mux.Vars(r)["method"]

	args, err := readArgs(w, r)
	if err != nil {
		s.methodError(w, r, method, http.StatusBadRequest, CodeInvalidArgument, err.Error())
		return
	}

	switch method {
	case "init":
		if err := s.tc.Initialize(); err != nil {
			s.writeJSON(w, r, method, http.StatusOK, failed(nil, err))
			return
		}
		s.writeJSON(w, r, method, http.StatusOK, MethodResult{})

	case "start":
		if args.MagnetURL == nil {
			s.methodError(w, r, method, http.StatusBadRequest, CodeInvalidArgument, "Magnet URL is missing")
			return
		}
		if args.DownloadPath == nil {
			s.methodError(w, r, method, http.StatusBadRequest, CodeInvalidArgument, "Download path is missing")
			return
		}
		path, err := s.tc.Start(r.Context(), *args.MagnetURL, *args.DownloadPath)
		if err != nil {
			s.writeJSON(w, r, method, http.StatusOK, failed("", err))
			return
		}
		s.writeJSON(w, r, method, http.StatusOK, MethodResult{Result: path})

	case "getFiles":
		files, err := s.tc.ListFiles()
		if err != nil {
			s.writeJSON(w, r, method, http.StatusOK, failed(nil, err))
			return
		}
		s.writeJSON(w, r, method, http.StatusOK, MethodResult{Result: files})

	case "stop":
		if err := s.tc.Stop(r.Context()); err != nil {
			s.writeJSON(w, r, method, http.StatusOK, failed(nil, err))
			return
		}
		s.writeJSON(w, r, method, http.StatusOK, MethodResult{})

	default:
		s.methodError(w, r, method, http.StatusNotImplemented, CodeNotImplemented, fmt.Sprintf("method %q not implemented", method))
	}
}

// readArgs decodes the request body. An empty body means no arguments.
func readArgs(w http.ResponseWriter, r *http.Request) (MethodArgs, error) {
	var args MethodArgs
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return args, errors.New("error reading request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(body, &args); err != nil {
		return args, errors.New("error parsing request body")
	}
	return args, nil
}
