package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/pipeline"
	"github.com/roach88/otcore/internal/store"
)

type submitRequest struct {
	BaseRevision *int64        `json:"baseRevision" binding:"required,gte=0"`
	Patches      model.Patches `json:"patches"`
	Author       string        `json:"author" binding:"required,max=128"`
	Nonce        string        `json:"nonce" binding:"max=128"`
}

type submitResponse struct {
	Revision        int64                      `json:"revision"`
	AppliedPatches  model.Patches              `json:"appliedPatches"`
	PreviousPatches []model.CommittedOperation `json:"previousPatches"`
	MissedPatches   model.Patches              `json:"missedPatches"`
	Duplicate       bool                       `json:"duplicate"`
	Skipped         bool                       `json:"skipped"`
	Attempts        int                        `json:"attempts"`
}

func newSubmitResponse(r *pipeline.Result) submitResponse {
	resp := submitResponse{
		Revision:        r.Revision,
		AppliedPatches:  nonNil(r.Applied),
		PreviousPatches: r.Previous,
		MissedPatches:   nonNil(r.Missed),
		Duplicate:       r.Duplicate,
		Skipped:         r.Skipped,
		Attempts:        r.Attempts,
	}
	if resp.PreviousPatches == nil {
		resp.PreviousPatches = []model.CommittedOperation{}
	}
	return resp
}

func nonNil(ps []model.Patch) model.Patches {
	if ps == nil {
		return model.Patches{}
	}
	return ps
}

func (s *Server) handleSubmit(c *gin.Context) {
	id, ok := objectID(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var decodeErr *model.PatchDecodeError
		if errors.As(err, &decodeErr) {
			idx := decodeErr.Index
			writeError(c, http.StatusUnprocessableEntity, string(pipeline.CodeMalformedPatch), err.Error(), &idx)
			return
		}
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	res, err := s.submitter.Submit(c.Request.Context(), pipeline.Submission{
		ObjectID:     id,
		BaseRevision: *req.BaseRevision,
		Patches:      req.Patches,
		Author:       req.Author,
		Nonce:        req.Nonce,
	})
	if err != nil {
		s.writeSubmitError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSubmitResponse(res))
}

// submitStatus maps submission error codes to HTTP status codes.
var submitStatus = map[pipeline.ErrorCode]int{
	pipeline.CodeNotFound:            http.StatusNotFound,
	pipeline.CodeInvalidBaseRevision: http.StatusConflict,
	pipeline.CodeMalformedPatch:      http.StatusUnprocessableEntity,
	pipeline.CodeStorageUnavailable:  http.StatusServiceUnavailable,
	pipeline.CodeRetryExhausted:      http.StatusServiceUnavailable,
}

func (s *Server) writeSubmitError(c *gin.Context, err error) {
	var se *pipeline.SubmitError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(c, http.StatusServiceUnavailable, "CANCELLED", err.Error(), nil)
			return
		}
		s.logger.Error("submit failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	status, ok := submitStatus[se.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if pipeline.Retryable(se) {
		c.Header("Retry-After", "1")
	}
	var idx *int
	if se.Code == pipeline.CodeMalformedPatch && se.PatchIndex >= 0 {
		idx = &se.PatchIndex
	}
	writeError(c, status, string(se.Code), se.Error(), idx)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	id, ok := objectID(c)
	if !ok {
		return
	}
	rev, set, ok := revisionQuery(c, "revision")
	if !ok {
		return
	}

	var (
		snap model.Snapshot
		err  error
	)
	if set {
		snap, err = store.SnapshotAt(c.Request.Context(), s.store, id, rev)
	} else {
		snap, err = s.loadSnapshot(c.Request.Context(), id)
	}
	if err != nil {
		s.writeStoreError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// loadSnapshot collapses concurrent reads of the same object into one
// store call.
func (s *Server) loadSnapshot(ctx context.Context, id model.ObjectID) (model.Snapshot, error) {
	v, err, _ := s.loads.Do(id.String(), func() (any, error) {
		return s.store.Get(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return v.(model.Snapshot), nil
}

func (s *Server) handleLog(c *gin.Context) {
	id, ok := objectID(c)
	if !ok {
		return
	}
	since, _, ok := revisionQuery(c, "since")
	if !ok {
		return
	}

	ops, err := s.store.ListCommittedSince(c.Request.Context(), id, since)
	if err != nil {
		s.writeStoreError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"objectId": id.String(), "operations": ops})
}

func (s *Server) writeStoreError(c *gin.Context, id model.ObjectID, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, string(pipeline.CodeNotFound), err.Error(), nil)
	case errors.Is(err, store.ErrUnavailable):
		c.Header("Retry-After", "1")
		writeError(c, http.StatusServiceUnavailable, string(pipeline.CodeStorageUnavailable), err.Error(), nil)
	case errors.Is(err, store.ErrRevisionOutOfRange):
		writeError(c, http.StatusBadRequest, "INVALID_REVISION", err.Error(), nil)
	default:
		s.logger.Error("store read failed", zap.String("object", id.String()), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
