package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/riskwatch/backend/internal/config"
	"github.com/riskwatch/backend/internal/engine"
	"github.com/riskwatch/backend/internal/handlers"
	"github.com/riskwatch/backend/internal/lifecycle"
	"github.com/riskwatch/backend/internal/scheduler"
	"github.com/riskwatch/backend/internal/sender"
	"github.com/riskwatch/backend/internal/store"
)

func main() {
	configFile := flag.String("f", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.Open(cfg.Database.URL, cfg.Database.Path)
	if err != nil {
		log.Fatal(err)
	}

	lm := lifecycle.NewManager(db.DB)
	dispatcher := sender.NewDispatcher(db.DB,
		cfg.Notify.MaxRetry, cfg.RetryDelay(), cfg.NotifyTimeout(), cfg.Notify.MaxConcurrent)
	eng := engine.New(db, lm, dispatcher, cfg.Engine.Workers)

	sched := scheduler.New(eng, cfg.CheckInterval())
	sched.Start()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down...")
		sched.Stop()
		os.Exit(0)
	}()

	r := gin.Default()
	r.Use(gin.Recovery())

	r.GET("/api/v1/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := r.Group("/api/v1")
	{
		al := &handlers.AlertHandler{DB: db.DB, Lifecycle: lm}
		api.GET("/alerts", al.List)
		api.GET("/alerts/active", al.Active)
		api.GET("/alerts/export", al.Export)
		api.GET("/alerts/:id", al.Get)
		api.POST("/alerts/acknowledge", al.Acknowledge)
		api.POST("/alerts/resolve", al.Resolve)

		rule := &handlers.RuleHandler{DB: db.DB, Scheduler: sched}
		api.GET("/rules", rule.List)
		api.GET("/rules/:id", rule.Get)
		api.POST("/rules", rule.Create)
		api.PUT("/rules/:id", rule.Update)
		api.DELETE("/rules/:id", rule.Delete)
		api.POST("/rules/trigger", rule.Trigger)

		ch := &handlers.ChannelHandler{DB: db.DB, Dispatcher: dispatcher}
		api.GET("/channels", ch.List)
		api.GET("/channels/:id", ch.Get)
		api.POST("/channels", ch.Create)
		api.PUT("/channels/:id", ch.Update)
		api.DELETE("/channels/:id", ch.Delete)
		api.POST("/channels/:id/test", ch.TestSend)

		m := &handlers.MetricHandler{Store: db}
		api.GET("/metrics/:code/latest", m.Latest)
		api.GET("/metrics/:code/recent", m.Recent)
	}

	log.Println("Listening on", cfg.Server.Addr)
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatal(err)
	}
}
