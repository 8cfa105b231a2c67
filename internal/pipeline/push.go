package pipeline

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/drblury/pulseflow/internal/deadletter"
	errspkg "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/stage"
)

// maxPushBody caps push request bodies.
const maxPushBody = 10 << 20

// PushRequest is the body of a push delivery.
type PushRequest struct {
	Message struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type pushResponse struct {
	Status    string `json:"status"`
	Rows      *int   `json:"rows,omitempty"`
	Stage     string `json:"stage,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

var statusByClass = map[string]int{
	"decode":     http.StatusBadRequest,
	"validation": http.StatusBadRequest,
	"shape":      http.StatusUnprocessableEntity,
	"sink":       http.StatusInternalServerError,
	"internal":   http.StatusInternalServerError,
}

// PushHandler serves push deliveries. It answers 200 only when the message was
// durably processed, so the caller redelivers anything else.
func (p *Pipeline) PushHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, pushResponse{Status: "error", Message: "method not allowed"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, pushResponse{Status: "error", Message: "unreadable body"})
			return
		}

		in, err := decodePush(body)
		if err != nil {
			rec := p.runner.Fail(r.Context(), deadletter.StageParseNormalize, err, stage.Source{Raw: body})
			p.emit(r.Context(), []deadletter.Record{rec})
			writeJSON(w, http.StatusBadRequest, failureResponse(rec, stage.Classify(err)))
			return
		}

		out := p.Process(r.Context(), in)
		if out.Err != nil {
			class := out.Failure()
			p.logger.Debug("push delivery failed", logging.LogFields{
				"message_id": in.MessageID,
				"class":      class,
			})
			writeJSON(w, statusByClass[class], failureResponse(out.DeadLetters[0], class))
			return
		}
		rows := out.Written
		writeJSON(w, http.StatusOK, pushResponse{Status: "ok", Rows: &rows})
	})
}

func decodePush(body []byte) (Input, error) {
	var req PushRequest
	if err := jsoncodec.Unmarshal(body, &req); err != nil {
		return Input{}, &errspkg.DecodeError{Reason: "invalid push body", Cause: err}
	}
	data, err := base64.StdEncoding.DecodeString(req.Message.Data)
	if err != nil {
		return Input{}, &errspkg.DecodeError{Reason: "message.data is not base64", Cause: err}
	}
	id := req.Message.MessageID
	if id == "" {
		id = ids.CreateULID()
	}
	return Input{MessageID: id, Data: data, Attributes: req.Message.Attributes}, nil
}

// failureResponse describes a failure without exposing driver or internal errors.
func failureResponse(rec deadletter.Record, class string) pushResponse {
	msg := rec.ErrorMessage
	switch class {
	case "sink":
		msg = "curated sink write failed"
	case "internal":
		msg = "internal error"
	}
	return pushResponse{
		Status:    "error",
		Stage:     string(rec.Stage),
		ErrorType: rec.ErrorType,
		Message:   msg,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, body)
}
