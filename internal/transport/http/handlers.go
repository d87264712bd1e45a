package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkeye/Chatter/internal/app/orch"
	"github.com/dkeye/Chatter/internal/auth"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	ctxUsername         = "username"
	defaultHistoryLimit = 50
)

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// API serves the REST side: accounts, tokens and read-only views.
type API struct {
	Orch *orch.Orchestrator
	Auth *auth.Authenticator
}

func NewAPI(o *orch.Orchestrator, a *auth.Authenticator) *API {
	return &API{Orch: o, Auth: a}
}

func (api *API) Register(g *gin.RouterGroup) {
	g.POST("/accounts", api.handleCreateAccount)
	g.POST("/login", api.handleLogin)

	authed := g.Group("", api.BearerAuth())
	authed.GET("/online", api.handleOnline)
	authed.GET("/channels", api.handleChannels)
	authed.GET("/channels/:name/history", api.handleHistory)
}

// BearerAuth accepts a session token issued by login or the WS handshake.
func (api *API) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, http.StatusUnauthorized, &domain.AuthError{Reason: domain.AuthInvalidCredentials})
			return
		}
		claims, err := api.Auth.Tokens().Validate(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, &domain.AuthError{Reason: domain.AuthInvalidCredentials, Err: err})
			return
		}
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

func (api *API) handleCreateAccount(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err})
		return
	}
	if err := api.Auth.Register(c.Request.Context(), req.Username, req.Password); err != nil {
		abortWithError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": req.Username})
}

func (api *API) handleLogin(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, &domain.AuthError{Reason: domain.AuthInvalidRequest, Err: err})
		return
	}
	res, err := api.Auth.Authenticate(c.Request.Context(), auth.Request{Username: req.Username, Password: req.Password})
	if err != nil {
		abortWithError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: res.Token, ExpiresAt: res.ExpiresAt.Unix()})
}

func (api *API) handleOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": api.Orch.ListOnline()})
}

func (api *API) handleChannels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": api.Orch.Channels.List()})
}

func (api *API) handleHistory(c *gin.Context) {
	name, err := domain.NewChannelName(c.Param("name"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, &domain.ChannelError{Reason: domain.ChannelInvalid, Err: err})
		return
	}
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, &domain.ProtocolError{Reason: domain.ProtocolBadPayload, Err: err})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		abortWithError(c, http.StatusBadRequest, &domain.ProtocolError{Reason: domain.ProtocolBadPayload, Err: err})
		return
	}
	msgs, err := api.Orch.ChannelHistory(name, since, limit)
	if err != nil {
		abortWithError(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": name, "messages": msgs})
}

func statusOf(err error) int {
	var (
		aErr *domain.AuthError
		cErr *domain.ChannelError
	)
	switch {
	case errors.As(err, &aErr):
		switch aErr.Reason {
		case domain.AuthInvalidCredentials:
			return http.StatusUnauthorized
		case domain.AuthAccountExists, domain.AuthAlreadyOnline:
			return http.StatusConflict
		case domain.AuthForbidden:
			return http.StatusForbidden
		default:
			return http.StatusBadRequest
		}
	case errors.As(err, &cErr):
		switch cErr.Reason {
		case domain.ChannelNotFound:
			return http.StatusNotFound
		case domain.ChannelForbidden:
			return http.StatusForbidden
		default:
			return http.StatusBadRequest
		}
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "transport.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: domain.CodeOf(err), Error: err.Error()})
}
