package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecollab/collab-server/internal/document"
	"github.com/codecollab/collab-server/internal/document/service"
	"github.com/codecollab/collab-server/pkg/middleware"
)

// Handler exposes the coordinator and the share gateway over HTTP.
type Handler struct {
	svc   *service.Service
	share *service.ShareGateway
	log   *slog.Logger
}

func New(svc *service.Service, share *service.ShareGateway, log *slog.Logger) *Handler {
	return &Handler{svc: svc, share: share, log: log}
}

// Register mounts the document, chat and public share routes on api.
// auth guards every route except the public share fetch; extra middleware
// runs after auth on every route.
func (h *Handler) Register(api *gin.RouterGroup, auth gin.HandlerFunc, extra ...gin.HandlerFunc) {
	api.GET("/shared/:token", append(append([]gin.HandlerFunc{}, extra...), h.getShared)...)

	guarded := append([]gin.HandlerFunc{auth}, extra...)
	docs := api.Group("/documents", guarded...)
	docs.POST("", h.create)
	docs.GET("", h.list)
	docs.GET("/:id", h.get)
	docs.PUT("/:id", h.save)
	docs.POST("/:id/revert", h.revert)
	docs.POST("/:id/share", h.shareDocument)
	docs.POST("/:id/unshare", h.unshareDocument)
	docs.POST("/:id/collaborators/add", h.addCollaborator)
	docs.POST("/:id/collaborators/remove", h.removeCollaborator)
	docs.POST("/:id/export", h.export)

	api.GET("/chat/:documentId", append(guarded, h.chatHistory)...)
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, document.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, document.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		if status == http.StatusInternalServerError {
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(status, gin.H{"error": document.Message(err)})
}

func (h *Handler) create(c *gin.Context) {
	var req service.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) save(c *gin.Context) {
	var req struct {
		Content *string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	doc, err := h.svc.Save(c.Request.Context(), c.Param("id"), *req.Content, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) revert(c *gin.Context) {
	var req struct {
		VersionIndex *int `json:"versionIndex"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.VersionIndex == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "versionIndex is required"})
		return
	}
	doc, err := h.svc.Revert(c.Request.Context(), c.Param("id"), *req.VersionIndex, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) shareDocument(c *gin.Context) {
	token, err := h.share.Generate(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shareUrl": "/api/shared/" + token, "token": token})
}

func (h *Handler) unshareDocument(c *gin.Context) {
	if err := h.share.Revoke(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sharing disabled"})
}

type collaboratorRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

func (h *Handler) addCollaborator(c *gin.Context) {
	var req collaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}
	doc, err := h.svc.AddCollaborator(c.Request.Context(), c.Param("id"), req.Identifier, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collaborator added", "collaborators": doc.Collaborators})
}

func (h *Handler) removeCollaborator(c *gin.Context) {
	var req collaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}
	doc, err := h.svc.RemoveCollaborator(c.Request.Context(), c.Param("id"), req.Identifier, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Collaborator removed", "collaborators": doc.Collaborators})
}

func (h *Handler) export(c *gin.Context) {
	out, err := h.svc.Export(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) chatHistory(c *gin.Context) {
	msgs, err := h.svc.ChatHistory(c.Request.Context(), c.Param("documentId"), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) getShared(c *gin.Context) {
	doc, err := h.share.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
