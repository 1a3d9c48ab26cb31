package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
)

type createPatientRequest struct {
	MRN         string `json:"mrn"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"date_of_birth"`
}

type createDoctorRequest struct {
	RegistrationNo string `json:"registration_no"`
	Name           string `json:"name"`
	Specialty      string `json:"specialty"`
}

func (s *Server) CreatePatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var dob *time.Time
	if raw := strings.TrimSpace(req.DateOfBirth); raw != "" {
		parsed, err := time.Parse(dateOnlyLayout, raw)
		if err != nil {
			AbortWithError(c, newValidationError("date_of_birth", "invalid_date_of_birth", "date of birth must be YYYY-MM-DD"))
			return
		}
		dob = &parsed
	}

	resp, err := s.partySvc.CreatePatient(c.Request.Context(), partydomain.CreatePatientRequest{
		MRN:         req.MRN,
		Name:        req.Name,
		Phone:       req.Phone,
		Gender:      req.Gender,
		DateOfBirth: dob,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateDoctor(c *gin.Context) {
	var req createDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.partySvc.CreateDoctor(c.Request.Context(), partydomain.CreateDoctorRequest{
		RegistrationNo: req.RegistrationNo,
		Name:           req.Name,
		Specialty:      req.Specialty,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPatients(c *gin.Context) {
	s.searchParties(c, billingdomain.PartyPatient)
}

func (s *Server) ListDoctors(c *gin.Context) {
	s.searchParties(c, billingdomain.PartyDoctor)
}

func (s *Server) GetPatientByID(c *gin.Context) {
	s.getParty(c, billingdomain.PartyPatient)
}

func (s *Server) GetDoctorByID(c *gin.Context) {
	s.getParty(c, billingdomain.PartyDoctor)
}

func (s *Server) searchParties(c *gin.Context, kind billingdomain.PartyKind) {
	resp, err := s.partySvc.SearchParties(c.Request.Context(), kind, strings.TrimSpace(c.Query("search")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) getParty(c *gin.Context, kind billingdomain.PartyKind) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.partySvc.GetParty(c.Request.Context(), kind, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
