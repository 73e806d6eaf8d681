package router

import (
	"context"
	"errors"

	"hr-agent-go/internal/api/handler"
	"hr-agent-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	// 同步入库：上传PDF，返回 stored/duplicate 结果
	api.POST("/resume/store", func(c context.Context, ctx *app.RequestContext) {
		// 获取上传的文件，兼容 file 和 pdf 两种字段名
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			fileHeader, err = ctx.FormFile("pdf")
		}
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		if !handler.IsPDFFilename(fileHeader.Filename) {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "仅支持PDF文件"})
			return
		}

		// 打开文件
		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		result, err := resumeHandler.HandleResumeStore(c, file, fileHeader.Filename)
		if err != nil {
			status := consts.StatusInternalServerError
			if handler.IsClientError(err) {
				status = consts.StatusBadRequest
			}
			ctx.JSON(status, handler.BuildErrorResponse(err))
			return
		}

		ctx.JSON(consts.StatusOK, result)
	})

	// 按提交UUID查询已入库的元数据
	api.GET("/resume/:submission_uuid", func(c context.Context, ctx *app.RequestContext) {
		profile, err := resumeHandler.HandleResumeGet(c, ctx.Param("submission_uuid"))
		if err != nil {
			if errors.Is(err, storage.ErrProfileNotFound) {
				ctx.JSON(consts.StatusNotFound, utils.H{"error": "记录不存在"})
				return
			}
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, profile)
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		status := resumeHandler.CheckHealth(c)
		code := consts.StatusOK
		if status.Status != "ok" {
			code = consts.StatusServiceUnavailable
		}
		ctx.JSON(code, status)
	})
}
