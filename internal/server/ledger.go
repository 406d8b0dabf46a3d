package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type mintRequest struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
	Amount   int64  `json:"amount"`
}

func (s *Server) mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.ledger.Mint(c.Request.Context(), req.Token, req.Identity, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "minted"})
}

type approveRequest struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

func (s *Server) approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	// Members approve the engine account so contributions can be
	// pulled; an explicit spender supports external integrations.
	spender := strings.TrimSpace(req.Spender)
	if spender == "" {
		spender = s.cfg.EngineAccount
	}

	if err := s.ledger.Approve(c.Request.Context(), req.Token, req.Owner, spender, req.Amount); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved", "spender": spender})
}

func (s *Server) balance(c *gin.Context) {
	balance, err := s.ledger.BalanceOf(c.Request.Context(), c.Query("token"), c.Query("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) allowance(c *gin.Context) {
	remaining, err := s.ledger.Allowance(c.Request.Context(), c.Query("token"), c.Query("owner"), c.Query("spender"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}
