package remote

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/memory"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

// Handler serves Client requests from conn. Unsupported actions and bad
// arguments answer 400, other failures 500.
type Handler struct {
	conn   collection.Connection
	logger *zap.Logger
}

func NewHandler(conn collection.Connection, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{conn: conn, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reply(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.reply(w, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	if req.Action == "" || req.Collection.Name == "" {
		h.reply(w, http.StatusBadRequest, Response{Error: "action and collection name are required"})
		return
	}

	res, err := h.conn.Dispatch(r.Context(), req.Decode())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrUnsupportedAction) || errors.Is(err, collection.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		h.logger.Warn("remote action failed",
			zap.String("collection", req.Collection.Name),
			zap.String("action", req.Action),
			zap.Error(err),
		)
		h.reply(w, status, Response{Error: err.Error()})
		return
	}
	h.logger.Debug("remote action served",
		zap.String("collection", req.Collection.Name),
		zap.String("action", req.Action),
		zap.Bool("updated", res.Updated),
	)
	h.reply(w, http.StatusOK, Response{Result: res.Value, Updated: res.Updated})
}

func (h *Handler) reply(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
