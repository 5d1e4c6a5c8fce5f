package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// AdmMemberController lists members for administrators.
type AdmMemberController struct {
	members *services.MemberService
}

func NewAdmMemberController(members *services.MemberService) *AdmMemberController {
	return &AdmMemberController{members: members}
}

// Items pages through members, filtered by searchKeywordType and searchKeyword.
func (c *AdmMemberController) Items(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx)
	result, err := c.members.Search(ctx.Request.Context(), ctx.Query("searchKeywordType"), ctx.Query("searchKeyword"), page, pageSize)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, services.MapPage(result, func(m *models.Member) MemberWithUsernameDto {
		return newMemberWithUsernameDto(c.members, m)
	}))
}
