package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

/**
 * Main entry point for the web service
 */
func main() {
	log.Printf("===> portal-search-ws starting up <===")

	cfg := loadConfig()
	portal := initializePortal(cfg)

	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	router.Use(gzip.Gzip(gzip.DefaultCompression))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowCredentials = true
	corsCfg.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsCfg))

	prom := ginprometheus.NewPrometheus("gin")

	// roundabout setup of /metrics endpoint to avoid double-gzip of response
	router.Use(prom.HandlerFunc())
	h := promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true}))

	router.GET(prom.MetricsPath, func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	})

	pprof.Register(router)

	router.GET("/favicon.ico", portal.ignoreHandler)

	router.GET("/version", portal.versionHandler)
	router.GET("/identify", portal.optionalAuthHandler, portal.identifyHandler)
	router.GET("/healthcheck", portal.healthCheckHandler)

	if api := router.Group("/api"); api != nil {
		api.GET("/indexes", portal.optionalAuthHandler, portal.indexesHandler)
		api.GET("/search/:index", portal.optionalAuthHandler, portal.searchHandler)
		api.GET("/subject/:index/*subject", portal.optionalAuthHandler, portal.subjectHandler)
		api.GET("/transfer/helper", portal.authenticateHandler, portal.transferHelperHandler)
		api.POST("/transfer/:index", portal.authenticateHandler, portal.transferHandler)
		api.GET("/preview/:index", portal.authenticateHandler, portal.previewHandler)
		api.POST("/logout", portal.authenticateHandler, portal.logoutHandler)
	}

	router.Use(static.Serve("/assets", static.LocalFile("./assets", false)))

	portStr := fmt.Sprintf(":%s", portal.config.Service.Port)
	log.Printf("Start service on %s", portStr)

	log.Fatal(router.Run(portStr))
}
