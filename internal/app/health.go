package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driller442/BatteryHub/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器；pool 为 nil 时不挂数据库检查器
func NewHealthAggregator(dbpool *pgxpool.Pool) *health.Aggregator {
	agg := health.NewAggregator()
	if dbpool != nil {
		agg.AddChecker(health.NewDatabaseChecker(dbpool))
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddSupervisorChecker 监督者启动后把会话状态纳入健康汇报
func AddSupervisorChecker(aggregator *health.Aggregator, states health.SessionStates) {
	aggregator.AddChecker(health.NewSupervisorChecker(states))
}
