package http

import (
	"sync"

	"github.com/gin-gonic/gin"

	"dubbing-service/ddd/application/app"
	"dubbing-service/ddd/application/cqe"
	"dubbing-service/pkg/assert"
	"dubbing-service/pkg/errno"
	"dubbing-service/pkg/manager"
	"dubbing-service/pkg/restapi"
)

var (
	dubbingControllerOnce      sync.Once
	singletonDubbingController DubbingController
)

type DubbingControllerPlugin struct{}

func (p *DubbingControllerPlugin) Name() string {
	return "dubbingControllerPlugin"
}

func (p *DubbingControllerPlugin) MustCreateController() manager.Controller {
	assert.NotCircular()
	dubbingControllerOnce.Do(func() {
		singletonDubbingController = NewDubbingController(app.DefaultDubbingApp())
	})
	assert.NotNil(singletonDubbingController)
	return singletonDubbingController
}

type DubbingController interface {
	manager.Controller
	SubmitJob(ctx *gin.Context)
	GetJob(ctx *gin.Context)
	ListJobs(ctx *gin.Context)
	CancelJob(ctx *gin.Context)
}

type dubbingControllerImpl struct {
	dubbingApp app.DubbingApp
}

func NewDubbingController(dubbingApp app.DubbingApp) DubbingController {
	return &dubbingControllerImpl{dubbingApp: dubbingApp}
}

// RegisterRoutes 注册配音任务路由
func (c *dubbingControllerImpl) RegisterRoutes(group *gin.RouterGroup) {
	jobs := group.Group("/jobs")
	{
		jobs.POST("", c.SubmitJob)                // 提交任务
		jobs.GET("", c.ListJobs)                  // 任务列表
		jobs.GET("/:job_id", c.GetJob)            // 任务详情与进度
		jobs.POST("/:job_id/cancel", c.CancelJob) // 取消任务
	}
}

func (c *dubbingControllerImpl) SubmitJob(ctx *gin.Context) {
	var req cqe.SubmitJobReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		restapi.Failed(ctx, errno.NewBizError(errno.ErrInvalidParam, err.Error()))
		return
	}
	out, err := c.dubbingApp.SubmitJob(ctx.Request.Context(), &req)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Accepted(ctx, out)
}

func (c *dubbingControllerImpl) GetJob(ctx *gin.Context) {
	out, err := c.dubbingApp.GetJob(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, out)
}

func (c *dubbingControllerImpl) ListJobs(ctx *gin.Context) {
	var query cqe.ListJobsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		restapi.Failed(ctx, errno.NewBizError(errno.ErrInvalidParam, err.Error()))
		return
	}
	out, err := c.dubbingApp.ListJobs(ctx.Request.Context(), &query)
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Success(ctx, out)
}

func (c *dubbingControllerImpl) CancelJob(ctx *gin.Context) {
	out, err := c.dubbingApp.CancelJob(ctx.Request.Context(), ctx.Param("job_id"))
	if err != nil {
		restapi.Failed(ctx, err)
		return
	}
	restapi.Accepted(ctx, out)
}
