package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pooldomain "github.com/axiomprotocol/susu/internal/pool/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createPoolRequest struct {
	Creator              string         `json:"creator"`
	Name                 string         `json:"name"`
	Token                string         `json:"token"`
	MemberTarget         int            `json:"member_target"`
	ContributionAmount   int64          `json:"contribution_amount"`
	CycleDurationSeconds int64          `json:"cycle_duration_seconds"`
	GracePeriodSeconds   int64          `json:"grace_period_seconds"`
	StartTime            time.Time      `json:"start_time"`
	RandomizedOrder      bool           `json:"randomized_order"`
	OpenJoin             *bool          `json:"open_join"`
	VaultMode            bool           `json:"vault_mode"`
	ProtocolFeeBps       int64          `json:"protocol_fee_bps"`
	LateFeeBps           int64          `json:"late_fee_bps"`
	PermutationSeed      int64          `json:"permutation_seed"`
	Metadata             map[string]any `json:"metadata"`
}

func (s *Server) createPool(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	openJoin := true
	if req.OpenJoin != nil {
		openJoin = *req.OpenJoin
	}

	pool, err := s.poolSvc.Create(c.Request.Context(), pooldomain.CreatePoolRequest{
		Creator:            req.Creator,
		Name:               req.Name,
		Token:              req.Token,
		MemberTarget:       req.MemberTarget,
		ContributionAmount: req.ContributionAmount,
		CycleDuration:      time.Duration(req.CycleDurationSeconds) * time.Second,
		GracePeriod:        time.Duration(req.GracePeriodSeconds) * time.Second,
		StartTime:          req.StartTime,
		RandomizedOrder:    req.RandomizedOrder,
		OpenJoin:           openJoin,
		VaultMode:          req.VaultMode,
		ProtocolFeeBps:     req.ProtocolFeeBps,
		LateFeeBps:         req.LateFeeBps,
		PermutationSeed:    req.PermutationSeed,
		Metadata:           req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pool)
}

func (s *Server) listPools(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	resp, err := s.poolSvc.List(c.Request.Context(), pooldomain.ListPoolsRequest{
		Status:    c.Query("status"),
		Creator:   c.Query("creator"),
		PageToken: c.Query("page_token"),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPool(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pool, err := s.poolSvc.Get(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

type joinPoolRequest struct {
	Identity string `json:"identity"`
	Inviter  string `json:"inviter"`
}

func (s *Server) joinPool(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req joinPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	member, err := s.poolSvc.Join(c.Request.Context(), pooldomain.JoinPoolRequest{
		PoolID:   poolID,
		Identity: req.Identity,
		Inviter:  req.Inviter,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (s *Server) startPool(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pool, err := s.poolSvc.Start(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

type contributeRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) contribute(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req contributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.poolSvc.Contribute(c.Request.Context(), pooldomain.ContributeRequest{
		PoolID:   poolID,
		Identity: req.Identity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type exitPoolRequest struct {
	Identity string `json:"identity"`
}

func (s *Server) exitPool(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req exitPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.poolSvc.Exit(c.Request.Context(), poolID, req.Identity); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "exited"})
}

type cancelPoolRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelPool(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cancelPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.poolSvc.Cancel(c.Request.Context(), poolID, req.Reason); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) listMembers(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.poolSvc.Members(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) getMember(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.poolSvc.Member(c.Request.Context(), poolID, c.Param("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (s *Server) payoutOrder(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.poolSvc.PayoutOrder(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) cycleInfo(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	info, err := s.poolSvc.CycleInfo(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) currentRecipient(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	recipient, err := s.poolSvc.CurrentRecipient(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipient)
}

func (s *Server) expectedPayout(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	expected, err := s.poolSvc.ExpectedPayout(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, expected)
}

func (s *Server) listPayouts(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payouts, err := s.payoutSvc.List(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

func (s *Server) getContribution(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cycle, err := strconv.Atoi(c.Query("cycle"))
	if err != nil || cycle < 1 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	identity := strings.TrimSpace(c.Query("identity"))
	if identity == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.poolSvc.Contribution(c.Request.Context(), poolID, cycle, identity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) listEvents(c *gin.Context) {
	poolID, err := parsePoolID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.auditSvc.ListEvents(c.Request.Context(), poolID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) userPools(c *gin.Context) {
	pools, err := s.poolSvc.UserPools(c.Request.Context(), c.Param("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pools": pools})
}

func (s *Server) stats(c *gin.Context) {
	total, err := s.poolSvc.TotalPools(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_pools": total})
}

func parsePoolID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
