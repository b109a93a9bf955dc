package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/handlers"
	"github.com/Gopher0727/ProjectChat/internal/middlewares"
	"github.com/Gopher0727/ProjectChat/internal/ws"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
	"github.com/Gopher0727/ProjectChat/middleware/ratelimit"
)

// Handlers 路由依赖
type Handlers struct {
	Channels *handlers.ChannelHandler
	Messages *handlers.MessageHandler
	Direct   *handlers.DirectHandler
	Presence *handlers.PresenceHandler
	WS       *ws.Handler
}

// Options 中间件参数
type Options struct {
	Tokens   middlewares.TokenParser
	Profiles middlewares.ProfileSyncer
	// Limiter 为 nil 或 LimitPerMinute <= 0 时不限流
	Limiter        ratelimit.Limiter
	LimitPerMinute int
	Logger         *logger.Logger
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, h Handlers, opts Options) {
	r.Use(middlewares.Recovery(opts.Logger), middlewares.TraceMiddleware(opts.Logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middlewares.TraceHeader}
	corsCfg.ExposeHeaders = []string{middlewares.TraceHeader}
	r.Use(cors.New(corsCfg))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middlewares.AuthMiddleware(opts.Tokens, opts.Profiles)

	// WebSocket 握手不参与限流
	if h.WS != nil {
		r.GET("/ws/:channel_id", auth, h.WS.ServeWS)
	}

	api := r.Group("/api/v1/chat", auth)
	if opts.Limiter != nil && opts.LimitPerMinute > 0 {
		api.Use(ratelimit.Middleware(opts.Limiter, opts.LimitPerMinute, time.Minute, ratelimit.ByUser))
	}

	RegisterChannelRoutes(api, h.Channels)
	RegisterMessageRoutes(api, h.Messages)
	RegisterDirectRoutes(api, h.Direct)
	RegisterPresenceRoutes(api, h.Presence)
}

// RegisterChannelRoutes 频道与成员
func RegisterChannelRoutes(g *gin.RouterGroup, ch *handlers.ChannelHandler) {
	channels := g.Group("/channels")
	{
		channels.POST("", ch.CreateChannel)
		channels.GET("", ch.ListChannels)
		channels.GET("/:channel_id", ch.GetChannel)
		channels.PUT("/:channel_id", ch.UpdateChannel)
		channels.DELETE("/:channel_id", ch.DeleteChannel)

		channels.POST("/:channel_id/members", ch.AddMember)
		channels.GET("/:channel_id/members", ch.ListMembers)
		channels.POST("/:channel_id/members/bulk-add", ch.BulkAddMembers)
		channels.DELETE("/:channel_id/members/:employee_id", ch.RemoveMember)
		channels.PUT("/:channel_id/members/:employee_id/role", ch.ChangeRole)

		channels.GET("/:channel_id/statistics", ch.Statistics)
		channels.GET("/:channel_id/online-users", ch.OnlineUsers)
	}
}

// RegisterMessageRoutes 消息、表情回应与搜索
func RegisterMessageRoutes(g *gin.RouterGroup, m *handlers.MessageHandler) {
	g.POST("/channels/:channel_id/messages", m.SendMessage)
	g.GET("/channels/:channel_id/messages", m.ListMessages)

	messages := g.Group("/messages")
	{
		messages.PUT("/:message_id", m.UpdateMessage)
		messages.DELETE("/:message_id", m.DeleteMessage)
		messages.POST("/:message_id/reactions", m.AddReaction)
		messages.DELETE("/:message_id/reactions/:emoji", m.RemoveReaction)
	}

	g.POST("/search/messages", m.SearchMessages)
}

// RegisterDirectRoutes 私信
func RegisterDirectRoutes(g *gin.RouterGroup, d *handlers.DirectHandler) {
	direct := g.Group("/direct-messages")
	{
		direct.POST("", d.Send)
		direct.GET("/:user_id", d.Conversation)
		direct.PUT("/:user_id/mark-read", d.MarkRead)
	}
}

// RegisterPresenceRoutes 在线状态
func RegisterPresenceRoutes(g *gin.RouterGroup, p *handlers.PresenceHandler) {
	g.PUT("/online-status", p.SetStatus)
	g.GET("/online-status/:user_id", p.GetStatus)
	g.GET("/online-users", p.OnlineUsers)
}
